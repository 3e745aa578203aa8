package models

import "fmt"

// ExitStatus is the code a traced function handed to the exit call.
type ExitStatus int

func (e ExitStatus) Error() string {
	return fmt.Sprintf("exit %d", e)
}
