// Package prefs exposes a hierarchical preference tree over a storage.Store.
//
// A node is addressed by a slash separated absolute path such as
// "/instance/net.sourceforge.ganttproject/export". Keys are stored flat as
// "<path>/<key>"; the root node stores "/<key>".
package prefs

import (
	"context"
	"strconv"
	"strings"
	"time"

	"planexport/internal/storage"
	logx "planexport/pkg/logx"
)

const defaultTimeout = 2 * time.Second

// Node is one level of the preference tree. The zero value is not usable;
// obtain nodes from Root and Node.
type Node struct {
	st      storage.Store
	log     logx.Logger
	path    string
	timeout time.Duration
}

// Root returns the root node of st. Storage errors are logged and reads fall
// back to the caller's default.
func Root(st storage.Store, log logx.Logger) *Node {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Node{st: st, log: log.With(logx.String("comp", "prefs")), timeout: defaultTimeout}
}

// Path returns the absolute path of n ("" for the root).
func (n *Node) Path() string { return n.path }

// Node returns a descendant. Absolute paths are resolved from the root,
// relative ones from n.
func (n *Node) Node(path string) *Node {
	base := n.path
	if strings.HasPrefix(path, "/") {
		base = ""
	}
	parts := strings.Split(path, "/")
	var sb strings.Builder
	sb.WriteString(base)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "." {
			continue
		}
		sb.WriteByte('/')
		sb.WriteString(p)
	}
	return &Node{st: n.st, log: n.log, path: sb.String(), timeout: n.timeout}
}

func (n *Node) key(k string) string { return n.path + "/" + k }

func (n *Node) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), n.timeout)
}

// Get returns the stored value for key, or def when absent or unreadable.
func (n *Node) Get(key, def string) string {
	ctx, cancel := n.ctx()
	defer cancel()
	v, ok, err := n.st.GetPref(ctx, n.key(key))
	if err != nil {
		n.log.Warn("pref read failed", logx.String("key", n.key(key)), logx.Err(err))
		return def
	}
	if !ok {
		return def
	}
	return v
}

// Has reports whether key holds a value.
func (n *Node) Has(key string) bool {
	ctx, cancel := n.ctx()
	defer cancel()
	_, ok, err := n.st.GetPref(ctx, n.key(key))
	return err == nil && ok
}

func (n *Node) Put(key, value string) error {
	ctx, cancel := n.ctx()
	defer cancel()
	if err := n.st.PutPref(ctx, n.key(key), value); err != nil {
		n.log.Warn("pref write failed", logx.String("key", n.key(key)), logx.Err(err))
		return err
	}
	return nil
}

// GetBoolean parses the stored value with strconv.ParseBool; absent or
// malformed values yield def.
func (n *Node) GetBoolean(key string, def bool) bool {
	raw := n.Get(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return b
}

func (n *Node) PutBoolean(key string, value bool) error {
	return n.Put(key, strconv.FormatBool(value))
}

func (n *Node) Remove(key string) error {
	ctx, cancel := n.ctx()
	defer cancel()
	return n.st.DeletePref(ctx, n.key(key))
}

// Keys lists the keys stored directly on n, sorted. Keys of descendants are
// not included.
func (n *Node) Keys() ([]string, error) {
	ctx, cancel := n.ctx()
	defer cancel()
	prefix := n.path + "/"
	all, err := n.st.PrefKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		rest := strings.TrimPrefix(k, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		out = append(out, rest)
	}
	return out, nil
}
