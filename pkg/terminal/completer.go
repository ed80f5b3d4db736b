package terminal

import (
	"sort"
	"strings"

	"github.com/derekparker/trie"
)

// symbolCompleter completes command verbs and, after a break verb, the
// function names of the target executable.
type symbolCompleter struct {
	cmds    *Commands
	symbols *trie.Trie
}

func newSymbolCompleter(cmds *Commands) *symbolCompleter {
	return &symbolCompleter{cmds: cmds}
}

// load indexes names. It may be called again to replace the index.
func (sc *symbolCompleter) load(names []string) {
	sc.symbols = trie.New()
	for _, name := range names {
		sc.symbols.Add(name, nil)
	}
}

func (sc *symbolCompleter) complete(line string) (c []string) {
	verb, rest, found := strings.Cut(line, " ")
	if !found {
		for _, alias := range sc.cmds.Aliases() {
			if strings.HasPrefix(alias, strings.ToLower(line)) {
				c = append(c, alias)
			}
		}
		return c
	}
	if v, ok := sc.cmds.verb(verb); !ok || v != "b" || sc.symbols == nil {
		return nil
	}
	rest = strings.TrimLeft(rest, " ")
	if rest == "" || strings.HasPrefix(rest, "*") {
		return nil
	}
	names := sc.symbols.PrefixSearch(rest)
	sort.Strings(names)
	for _, name := range names {
		c = append(c, verb+" "+name)
	}
	return c
}
