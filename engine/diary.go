package engine

import (
	"strings"
)

// Diary is a generated diary entry.
type Diary struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Theme string `json:"theme,omitempty"`
}

var (
	titleMarkers = []string{"제목 :", "제목:", "Title:", "title:"}
	bodyMarkers  = []string{"본문 :", "본문:", "Body:", "body:"}
)

// ParseDiary splits generator output of the form "제목 : ... 본문 : ...".
// When either marker is missing the whole text becomes the body under
// untitled. It never fails.
func ParseDiary(text, untitled string) Diary {
	text = strings.TrimSpace(text)

	ti, tm := findMarker(text, titleMarkers)
	bi, bm := findMarker(text, bodyMarkers)
	if ti < 0 || bi < 0 || bi < ti {
		return Diary{Title: untitled, Body: text}
	}

	title := cleanLine(text[ti+len(tm) : bi])
	body := strings.TrimSpace(text[bi+len(bm):])
	if title == "" {
		title = untitled
	}
	if body == "" {
		body = text
	}
	return Diary{Title: title, Body: body}
}

func findMarker(text string, markers []string) (int, string) {
	best, marker := -1, ""
	for _, m := range markers {
		if i := strings.Index(text, m); i >= 0 && (best < 0 || i < best) {
			best, marker = i, m
		}
	}
	return best, marker
}

// cleanLine trims whitespace and the markdown emphasis generators like to
// wrap titles in.
func cleanLine(s string) string {
	return strings.Trim(strings.TrimSpace(s), "*#\"' \n")
}
