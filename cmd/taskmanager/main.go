// Command taskmanager connects to a document store and walks through the
// basic create, read, update and delete operations on users and tasks.
package main

import "github.com/nimburion/taskmanager/pkg/cli"

func main() {
	cli.Execute(cli.NewCommand(cli.CommandOptions{
		Name:        "taskmanager",
		Description: "Run the task manager document store walkthrough",
	}))
}
