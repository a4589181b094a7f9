//go:build debug

package debug

import "fmt"

const Enabled = true

func assert(cond bool, args ...interface{}) {
	if !cond {
		panic(fmt.Sprintln(append([]interface{}{"assertion failed:"}, args...)...))
	}
}
