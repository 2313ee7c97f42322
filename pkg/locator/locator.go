// Package locator finds the item list inside tRPC responses whose nesting
// changes between endpoints and API revisions.
package locator

import (
	"github.com/tidwall/gjson"
)

// DefaultMaxDepth bounds the search. The root node is depth 0.
const DefaultMaxDepth = 10

// EntityTypes are the "type" tags that mark an array as an item list.
var EntityTypes = map[string]bool{
	"image": true,
}

// Located is the outcome of a search. The zero value means not found.
type Located struct {
	items []gjson.Result

	// Container is the object holding the item list, when there is one.
	// Pagination reads nextCursor from it.
	Container gjson.Result
	// Depth of the item list, or -1 when nothing was found.
	Depth int
	// Truncated is set when some branch was cut off by the depth bound.
	Truncated bool
}

// Found reports whether an item list was located.
func (l Located) Found() bool {
	return l.items != nil
}

// Items returns the located list, nil when not found.
func (l Located) Items() []gjson.Result {
	return l.items
}

// Find searches node for an item list no deeper than maxDepth.
//
// Arrays whose first element is an object with an "id" and a known entity
// "type" match directly. Other arrays are searched element by element.
// Objects probe "items" and then "pages" before scanning every value in
// document order.
func Find(node gjson.Result, maxDepth int) Located {
	s := search{max: maxDepth}
	loc := s.find(node, gjson.Result{}, 0)
	loc.Truncated = s.truncated
	return loc
}

type search struct {
	max       int
	truncated bool
}

var notFound = Located{Depth: -1}

func (s *search) find(node, parent gjson.Result, depth int) Located {
	if depth > s.max {
		s.truncated = true
		return notFound
	}

	switch {
	case node.IsArray():
		arr := node.Array()
		if isItemList(arr) {
			return Located{items: arr, Container: parent, Depth: depth}
		}
		for _, el := range arr {
			if loc := s.find(el, gjson.Result{}, depth+1); loc.Found() {
				return loc
			}
		}

	case node.IsObject():
		probed := map[string]bool{}
		for _, key := range []string{"items", "pages"} {
			v := node.Get(key)
			if !v.IsArray() {
				continue
			}
			probed[key] = true
			if loc := s.find(v, node, depth+1); loc.Found() {
				return loc
			}
		}

		var found Located
		node.ForEach(func(key, value gjson.Result) bool {
			if probed[key.String()] {
				return true
			}
			if loc := s.find(value, node, depth+1); loc.Found() {
				found = loc
				return false
			}
			return true
		})
		if found.Found() {
			return found
		}
	}

	return notFound
}

func isItemList(arr []gjson.Result) bool {
	if len(arr) == 0 {
		return false
	}
	first := arr[0]
	if !first.IsObject() || !first.Get("id").Exists() {
		return false
	}
	return EntityTypes[first.Get("type").String()]
}
