// Command babyagi runs an autonomous task-queue agent toward an objective.
package main

import "github.com/d64483912-cmd/BabyAGI-Medical/cmd/babyagi/commands"

func main() {
	commands.Execute()
}
