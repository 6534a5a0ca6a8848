// Package taskmanager holds the users and tasks records and the walkthrough
// that exercises every basic document operation against them.
package taskmanager

import "github.com/nimburion/taskmanager/pkg/repository/document"

// User is a record of the users collection.
type User struct {
	ID   document.ID `bson:"_id,omitempty"`
	Name string      `bson:"name"`
	Age  int         `bson:"age"`
}

// Task is a record of the tasks collection.
type Task struct {
	ID          document.ID `bson:"_id,omitempty"`
	Description string      `bson:"description"`
	Completed   bool        `bson:"completed"`
}

// SeedUser returns the user inserted by the first walkthrough step.
func SeedUser() User {
	return User{Name: "Jen", Age: 21}
}

// SeedTasks returns the tasks inserted by the second walkthrough step.
func SeedTasks() []Task {
	return []Task{
		{Description: "Get vegetables", Completed: false},
		{Description: "Water Plants", Completed: false},
		{Description: "Meditate", Completed: true},
	}
}
