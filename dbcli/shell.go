package dbcli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"blockidx/btree"
)

// Shell is a line-oriented session over one open index. Errors are reported
// and the session continues.
type Shell struct {
	scanner *bufio.Scanner
	out     io.Writer
	tree    *btree.BTree
}

func NewShell(in io.Reader, out io.Writer, tree *btree.BTree) *Shell {
	return &Shell{scanner: bufio.NewScanner(in), out: out, tree: tree}
}

// Start runs until EXIT or end of input.
func (s *Shell) Start() error {
	s.printHelp()
	s.printPrompt()
	for s.scanner.Scan() {
		if !s.processInput(s.scanner.Text()) {
			return nil
		}
		s.printPrompt()
	}
	fmt.Fprintln(s.out)
	return s.scanner.Err()
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `
blockidx shell

Available Commands:
  INSERT <key> <val> Insert or replace a pair
  SEARCH <key>       Retrieve the value for key
  PRINT              List all pairs in key order
  VERIFY             Check the tree structure
  STATS              Show header and cache counters
  HELP               Show this text
  EXIT               Terminate this session

`)
}

func (s *Shell) printPrompt() {
	fmt.Fprint(s.out, "> ")
}

func (s *Shell) processInput(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return true
	}
	command := strings.ToLower(fields[0])
	var err error
	switch command {
	default:
		warnColor.Fprintf(s.out, "Unknown command %q\n", command)
	case "insert", "set":
		err = s.processInsertCommand(fields[1:])
	case "search", "get":
		err = s.processSearchCommand(fields[1:])
	case "print":
		err = printPairs(s.out, s.tree.Traverse)
	case "verify":
		err = s.processVerifyCommand()
	case "stats":
		s.processStatsCommand()
	case "help":
		s.printHelp()
	case "exit", "quit":
		return false
	}
	if err != nil {
		warnColor.Fprintf(s.out, "Error: %v\n", err)
	}
	return true
}

func (s *Shell) processInsertCommand(args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(s.out, "Usage: INSERT <key> <value>")
		return nil
	}
	key, err := parseUint("key", args[0])
	if err != nil {
		return err
	}
	value, err := parseUint("value", args[1])
	if err != nil {
		return err
	}
	if err := s.tree.Insert(key, value); err != nil {
		return err
	}
	okColor.Fprintf(s.out, "Inserted %d -> %d\n", key, value)
	return nil
}

func (s *Shell) processSearchCommand(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: SEARCH <key>")
		return nil
	}
	key, err := parseUint("key", args[0])
	if err != nil {
		return err
	}
	value, found, err := s.tree.Search(key)
	if err != nil {
		return err
	}
	printSearch(s.out, key, value, found)
	return nil
}

func (s *Shell) processVerifyCommand() error {
	stats, err := s.tree.Verify()
	if err != nil {
		return err
	}
	okColor.Fprintf(s.out, "OK: height %d, nodes %d, leaves %d, keys %d\n",
		stats.Height, stats.Nodes, stats.Leaves, stats.Keys)
	return nil
}

func (s *Shell) processStatsCommand() {
	h := s.tree.Header()
	cs := s.tree.CacheStats()
	fmt.Fprintf(s.out, "root %d, next block %d\n", h.RootID, h.NextID)
	fmt.Fprintf(s.out, "cache: %d/%d resident, %d hits, %d misses, %d evictions\n",
		cs.Resident, cs.Capacity, cs.Hits, cs.Misses, cs.Evictions)
}
