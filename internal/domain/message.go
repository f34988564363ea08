package domain

// Message is one formatted notification. ImageURL empty means text-only.
type Message struct {
	Title    string
	Body     string
	ImageURL string
}

// Text returns title and body joined the way plain-text sinks print them.
func (m Message) Text() string {
	switch {
	case m.Title == "":
		return m.Body
	case m.Body == "":
		return m.Title
	default:
		return m.Title + "\n" + m.Body
	}
}
