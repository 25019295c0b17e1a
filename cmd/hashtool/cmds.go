// cmds.go -- commands abstraction
//
// (c) Sudhi Herle 2018
//
// License GPLv2
//
// If you need a commercial license for this work, please contact
// the author.
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

package main

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/opencoff/go-hashdb"
)

type command interface {
	run(args []string, opt *Option) error
}

var cmds = struct {
	sync.Mutex
	m map[string]command
}{
	m: make(map[string]command),
}

func registerCommand(nm string, cmd command) {
	cmds.Lock()
	if _, ok := cmds.m[nm]; ok {
		panic(fmt.Sprintf("%s already registered", nm))
	}
	cmds.m[nm] = cmd
	cmds.Unlock()
}

func runCommand(args []string, o *Option) error {
	nm := args[0]

	cmds.Lock()
	cmd, ok := cmds.m[nm]
	cmds.Unlock()
	if !ok {
		return fmt.Errorf("unknown command %s; try one of %v", nm, commandNames())
	}

	return cmd.run(args, o)
}

func commandNames() []string {
	cmds.Lock()
	defer cmds.Unlock()

	nm := make([]string, 0, len(cmds.m))
	for k := range cmds.m {
		nm = append(nm, k)
	}
	sort.Strings(nm)
	return nm
}

type Option struct {
	verbose bool
	addr    string
	changes string
}

func (o *Option) Printf(s string, v ...interface{}) {
	if o.verbose {
		fmt.Printf(s, v...)
	}
}

// Logger returns a logger for library calls; it is quiet unless -V
func (o *Option) Logger() *zap.SugaredLogger {
	lvl := "warn"
	if o.verbose {
		lvl = "debug"
	}

	log, err := hashdb.NewLogger(lvl)
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return log
}
