package micropub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscoverPostType(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		props Properties
		want  PostType
	}{
		{
			name: "explicit non-entry type is returned verbatim",
			typ:  "event",
			props: Properties{
				"name": {"Party"},
			},
			want: PostType("event"),
		},
		{
			name: "rsvp wins over every other vocabulary entry",
			typ:  "entry",
			props: Properties{
				"rsvp":        {"yes"},
				"in-reply-to": {"https://example.com/event"},
				"like-of":     {"https://example.com/post"},
			},
			want: PostTypeRSVP,
		},
		{
			name:  "falsy rsvp is skipped",
			typ:   "entry",
			props: Properties{"rsvp": {""}, "like-of": {"https://example.com/post"}},
			want:  PostTypeFavorite,
		},
		{
			name:  "reply",
			typ:   "entry",
			props: Properties{"in-reply-to": {"https://example.com/post"}, "content": {"Agreed"}},
			want:  PostTypeReply,
		},
		{
			name:  "reply checked before repost",
			typ:   "entry",
			props: Properties{"repost-of": {"https://a.example/1"}, "in-reply-to": {"https://b.example/2"}},
			want:  PostTypeReply,
		},
		{
			name:  "repost",
			typ:   "entry",
			props: Properties{"repost-of": {"https://example.com/post"}},
			want:  PostTypeShare,
		},
		{
			name:  "bookmark",
			typ:   "entry",
			props: Properties{"bookmark-of": {"https://example.com/"}},
			want:  PostTypeBookmark,
		},
		{
			name:  "invalid url does not match",
			typ:   "entry",
			props: Properties{"like-of": {"not a url"}, "content": {"Hello"}},
			want:  PostTypeNote,
		},
		{
			name: "photo with nested url object",
			typ:  "entry",
			props: Properties{
				"photo": {map[string]interface{}{"value": "x", "url": "https://example.com/a.jpg", "alt": "A"}},
			},
			want: PostTypePhoto,
		},
		{
			name:  "video before photo",
			typ:   "entry",
			props: Properties{"photo": {"https://example.com/a.jpg"}, "video": {"https://example.com/a.mp4"}},
			want:  PostTypeVideo,
		},
		{
			name: "checkin with nested url list",
			typ:  "entry",
			props: Properties{
				"checkin": {map[string]interface{}{"url": []interface{}{"https://venue.example/"}}},
			},
			want: PostTypeCheckin,
		},
		{
			name:  "no content or summary is a note",
			typ:   "entry",
			props: Properties{"name": {"Title only"}},
			want:  PostTypeNote,
		},
		{
			name:  "content without name is a note",
			typ:   "entry",
			props: Properties{"content": {"Hello world"}},
			want:  PostTypeNote,
		},
		{
			name:  "name prefix of content is a note",
			typ:   "entry",
			props: Properties{"content": {"Hello world"}, "name": {"Hello"}},
			want:  PostTypeNote,
		},
		{
			name:  "distinct name is an article",
			typ:   "entry",
			props: Properties{"content": {"Hello world"}, "name": {"My Title"}},
			want:  PostTypeArticle,
		},
		{
			name:  "summary used when content is absent",
			typ:   "entry",
			props: Properties{"summary": {"A summary"}, "name": {"Different"}},
			want:  PostTypeArticle,
		},
		{
			name: "markup and whitespace are normalized",
			typ:  "entry",
			props: Properties{
				"content": {map[string]interface{}{"html": "<p>Hello\n\n   <b>world</b></p>"}},
				"name":    {"  Hello   world "},
			},
			want: PostTypeNote,
		},
		{
			name:  "empty type is treated as entry",
			typ:   "",
			props: Properties{"like-of": {"https://example.com/post"}},
			want:  PostTypeFavorite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &Request{Type: tt.typ, Properties: tt.props}
			assert.Equal(t, tt.want, DiscoverPostType(req))
		})
	}
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Hello world & more", StripTags("<p>Hello <em>world</em> &amp; more</p>"))
	assert.Equal(t, "plain", StripTags("plain"))
}
