package replparser

import (
	"bufio"
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"

	"github.com/lsmkv/lsmkv/pkg/lsm"
)

// REPL executes parsed Commands against an engine and writes
// responses to out, the interactive counterpart to
// internal/kvserver's line protocol.
type REPL struct {
	engine *lsm.Engine
	out    io.Writer
}

// New returns a REPL bound to engine, writing responses to out.
func New(engine *lsm.Engine, out io.Writer) *REPL {
	return &REPL{engine: engine, out: out}
}

// Run reads lines from in until EOF, executing each as a Command.
func (r *REPL) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			continue
		}
		r.execute(cmd)
	}
	return scanner.Err()
}

func (r *REPL) execute(cmd Command) {
	switch cmd.Op {
	case OpPut:
		if err := r.engine.Put([]byte(cmd.Key), []byte(cmd.Value)); err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "+OK")

	case OpGet:
		value, ok, err := r.engine.Get([]byte(cmd.Key))
		if err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			return
		}
		if !ok {
			fmt.Fprintln(r.out, "+NOTFOUND")
			return
		}
		fmt.Fprintf(r.out, "+VALUE %s\n", value)

	case OpDelete:
		// existed is best-effort: a concurrent writer can make it stale.
		existed, err := r.engine.Delete([]byte(cmd.Key))
		if err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			return
		}
		fmt.Fprintf(r.out, "+OK existed=%v\n", existed)

	case OpFlush:
		if err := r.engine.Flush(); err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "+OK")

	case OpClear:
		if err := r.engine.ClearData(); err != nil {
			fmt.Fprintf(r.out, "-ERR %v\n", err)
			return
		}
		fmt.Fprintln(r.out, "+OK")

	case OpLS:
		fmt.Fprintln(r.out, "-ERR ls is not supported: range scans are not implemented")

	case OpDump:
		spew.Fdump(r.out, r.engine.CurrentVersion())

	default:
		fmt.Fprintln(r.out, "-ERR unknown command")
	}
}
