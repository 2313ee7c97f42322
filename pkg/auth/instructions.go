package auth

import (
	"fmt"
	"io"
	"strings"
)

// Remediation is appended to authentication errors.
const Remediation = `To authenticate, do one of:
  - run "civharvest auth login" and paste your session cookie
  - export CIVITAI_SESSION_COOKIE=<value of the __Secure-civitai-token cookie>
  - set auth.acquire_command to a login helper that prints your cookies
  - set auth.session_cookie in the config file
A cached token that no longer works can be cleared with "civharvest auth logout".`

// QuickGuide is the one-line version of the extraction guide.
const QuickGuide = "Cookie: F12 → Application (Storage) → Cookies → https://civitai.com → copy __Secure-civitai-token"

// WriteCookieExtractionGuide writes step-by-step instructions for copying
// the session cookie out of a browser.
func WriteCookieExtractionGuide(w io.Writer) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "CIVITAI SESSION COOKIE GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "This tool reads private collections with your CivitAI session cookie.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Open https://civitai.com in your browser and sign in")
	fmt.Fprintln(w, "   - Google, Discord and email logins all work")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   • Chrome/Edge/Brave: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w, "   • Safari: enable the Develop menu in Preferences, then Cmd+Option+I")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Find the cookie")
	fmt.Fprintln(w, "   1. Open the 'Application' tab (Chrome) or 'Storage' tab (Firefox)")
	fmt.Fprintln(w, "   2. Expand 'Cookies' and select https://civitai.com")
	fmt.Fprintln(w, "   3. Copy the value of __Secure-civitai-token")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   The value is long, usually well over %d characters. A short value is\n", MinTokenLength)
	fmt.Fprintln(w, "   most likely the CSRF token and will not work.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 4: Hand it to civharvest")
	fmt.Fprintln(w, "   civharvest auth login            (paste when asked)")
	fmt.Fprintf(w, "   export %s=...\n", EnvSessionCookie)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SECURITY WARNING:")
	fmt.Fprintln(w, "   • The cookie gives full access to your CivitAI account")
	fmt.Fprintln(w, "   • Never share it")
	fmt.Fprintln(w, "   • It expires; log in again when requests start failing with 401")
	fmt.Fprintln(w, line)
}
