package importexport

import (
	"errors"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// ErrUnknownFormat is returned by ParseFile for input it cannot read.
var ErrUnknownFormat = errors.New("unrecognized bookmark file format")

// Seconds between 1601-01-01 (Chrome's epoch) and the Unix epoch.
const chromeEpochOffset = 11644473600

// ParseFile reads a bookmark export and returns its entries in Pinboard form.
// Supported inputs: a Pinboard JSON array, an object with a "bookmarks"
// array, a Chrome Bookmarks file and a Firefox JSON backup. Folders become
// space-separated tags.
func ParseFile(data []byte) ([]PinboardBookmark, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrUnknownFormat
	}
	root := gjson.ParseBytes(data)

	var out []PinboardBookmark
	switch {
	case root.IsArray():
		root.ForEach(func(_, item gjson.Result) bool {
			out = append(out, parsePinboard(item))
			return true
		})
	case root.Get("bookmarks").IsArray():
		root.Get("bookmarks").ForEach(func(_, item gjson.Result) bool {
			out = append(out, parseGeneric(item))
			return true
		})
	case root.Get("roots").IsObject():
		root.Get("roots").ForEach(func(_, node gjson.Result) bool {
			walkChrome(node, "", &out)
			return true
		})
	case root.Get("children").IsArray():
		walkFirefox(root, "", &out)
	default:
		return nil, ErrUnknownFormat
	}
	return out, nil
}

func parsePinboard(item gjson.Result) PinboardBookmark {
	return PinboardBookmark{
		Href:        item.Get("href").String(),
		Description: item.Get("description").String(),
		Extended:    item.Get("extended").String(),
		Tags:        item.Get("tags").String(),
		Time:        item.Get("time").String(),
		Shared:      item.Get("shared").String(),
		ToRead:      item.Get("toread").String(),
	}
}

// parseGeneric accepts url/href, title/description and a created_at that
// is either Unix seconds or RFC3339.
func parseGeneric(item gjson.Result) PinboardBookmark {
	b := PinboardBookmark{
		Href:        firstString(item, "url", "href"),
		Description: firstString(item, "title", "description"),
	}
	if created := item.Get("created_at"); created.Exists() {
		if created.Type == gjson.Number {
			b.Time = formatUnix(created.Int())
		} else {
			b.Time = created.String()
		}
	}
	return b
}

func walkChrome(node gjson.Result, folder string, out *[]PinboardBookmark) {
	switch node.Get("type").String() {
	case "url":
		b := PinboardBookmark{
			Href:        node.Get("url").String(),
			Description: node.Get("name").String(),
			Tags:        folder,
		}
		// date_added is a string of microseconds since 1601.
		if usec, err := strconv.ParseInt(node.Get("date_added").String(), 10, 64); err == nil && usec > 0 {
			b.Time = formatUnix(usec/1e6 - chromeEpochOffset)
		}
		*out = append(*out, b)
	case "folder", "":
		name := node.Get("name").String()
		node.Get("children").ForEach(func(_, child gjson.Result) bool {
			walkChrome(child, joinFolder(folder, name), out)
			return true
		})
	}
}

func walkFirefox(node gjson.Result, folder string, out *[]PinboardBookmark) {
	switch node.Get("typeCode").Int() {
	case 1:
		b := PinboardBookmark{
			Href:        node.Get("uri").String(),
			Description: node.Get("title").String(),
			Tags:        folder,
		}
		// dateAdded is microseconds since the Unix epoch.
		if usec := node.Get("dateAdded").Int(); usec > 0 {
			b.Time = formatUnix(usec / 1e6)
		}
		*out = append(*out, b)
	default:
		name := node.Get("title").String()
		node.Get("children").ForEach(func(_, child gjson.Result) bool {
			walkFirefox(child, joinFolder(folder, name), out)
			return true
		})
	}
}

func firstString(item gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := item.Get(k).String(); v != "" {
			return v
		}
	}
	return ""
}

func joinFolder(parent, name string) string {
	switch {
	case name == "":
		return parent
	case parent == "":
		return name
	}
	return parent + "/" + name
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}
