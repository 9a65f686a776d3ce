package micropub

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// vocabulary is checked in order; the first property that matches decides the type
var vocabulary = []struct {
	property string
	postType PostType
}{
	{"rsvp", PostTypeRSVP},
	{"in-reply-to", PostTypeReply},
	{"repost-of", PostTypeShare},
	{"like-of", PostTypeFavorite},
	{"bookmark-of", PostTypeBookmark},
	{"video", PostTypeVideo},
	{"photo", PostTypePhoto},
	{"checkin", PostTypeCheckin},
}

var whitespace = regexp.MustCompile(`\s+`)

// DiscoverPostType infers the post type from the request properties
// following IndieWeb post type discovery.
func DiscoverPostType(req *Request) PostType {
	if req.Type != "" && req.Type != "entry" {
		return PostType(req.Type)
	}

	props := req.Properties
	for _, entry := range vocabulary {
		v := props.First(entry.property)
		if v == nil {
			continue
		}
		if entry.property == "rsvp" {
			if truthy(v) {
				return entry.postType
			}
			continue
		}
		if isURL(v) {
			return entry.postType
		}
		if obj, ok := v.(map[string]interface{}); ok && isURL(firstOf(obj["url"])) {
			return entry.postType
		}
	}

	var content string
	if props.Has("content") {
		content = props.FirstString("content")
	} else {
		content = props.FirstString("summary")
	}
	if content == "" {
		return PostTypeNote
	}
	if !props.Has("name") {
		return PostTypeNote
	}

	if !strings.HasPrefix(normalizeText(content), normalizeText(props.FirstString("name"))) {
		return PostTypeArticle
	}
	return PostTypeNote
}

func normalizeText(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(StripTags(strings.TrimSpace(s)))
}

// StripTags returns the text content of an HTML fragment with entities decoded
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

func isURL(v interface{}) bool {
	s, ok := v.(string)
	if !ok || s == "" {
		return false
	}
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func firstOf(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != "" && val != "0"
	case bool:
		return val
	case float64:
		return val != 0
	case map[string]interface{}:
		return len(val) > 0
	case []interface{}:
		return len(val) > 0
	default:
		return true
	}
}
