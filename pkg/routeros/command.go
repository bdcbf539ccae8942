package routeros

import "strings"

// Attr is one "=key=value" argument. Order is preserved on the wire.
type Attr struct {
	Key   string
	Value string
}

// Query is one "?key=value" filter of a print command.
type Query struct {
	Key   string
	Value string
}

// Command is a single device command, e.g. "/ip/dhcp-server/lease/add".
type Command struct {
	Path    string
	Attrs   []Attr
	Queries []Query
}

// NewCommand starts a command for the given menu path.
func NewCommand(path string) Command {
	return Command{Path: path}
}

// With returns a copy of the command with an attribute appended.
func (c Command) With(key, value string) Command {
	c.Attrs = append(append([]Attr(nil), c.Attrs...), Attr{Key: key, Value: value})
	return c
}

// Where returns a copy of the command with an equality filter appended.
func (c Command) Where(key, value string) Command {
	c.Queries = append(append([]Query(nil), c.Queries...), Query{Key: key, Value: value})
	return c
}

// Attr returns the value of the named attribute.
func (c Command) Attr(key string) (string, bool) {
	for _, a := range c.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Query returns the value of the named query filter.
func (c Command) Query(key string) (string, bool) {
	for _, q := range c.Queries {
		if q.Key == key {
			return q.Value, true
		}
	}
	return "", false
}

// Words renders the command as API sentence words.
func (c Command) Words() []string {
	words := make([]string, 0, 1+len(c.Attrs)+len(c.Queries))
	words = append(words, c.Path)
	for _, a := range c.Attrs {
		words = append(words, "="+a.Key+"="+a.Value)
	}
	for _, q := range c.Queries {
		words = append(words, "?"+q.Key+"="+q.Value)
	}
	return words
}

// Menu returns the path without its final verb, e.g. "/ip/dhcp-server/lease".
func (c Command) Menu() string {
	i := strings.LastIndex(c.Path, "/")
	if i <= 0 {
		return c.Path
	}
	return c.Path[:i]
}

// Verb returns the final path element, e.g. "add".
func (c Command) Verb() string {
	return c.Path[strings.LastIndex(c.Path, "/")+1:]
}

// IsMutation reports whether the command changes device state.
func (c Command) IsMutation() bool {
	switch c.Verb() {
	case "print", "getall", "login":
		return false
	}
	return true
}
