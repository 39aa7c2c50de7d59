package main

import (
	"time"

	"github.com/google/uuid"
)

// Person is keyed by a generated string.
type Person struct {
	Id     string
	Name   string
	Email  string `graph:",omitempty"`
	Joined time.Time
}

func (*Person) TypeName() string { return "Person" }
func (p *Person) GetID() string { return p.Id }
func (p *Person) SetID(id string) { p.Id = id }

// Team is what people are MEMBER_OF.
type Team struct {
	Id   string
	Name string
}

func (*Team) TypeName() string { return "Team" }
func (t *Team) GetID() string { return t.Id }
func (t *Team) SetID(id string) { t.Id = id }

// Ticket is keyed by a generated UUID.
type Ticket struct {
	Id     uuid.UUID
	Title  string
	Points int
	Closed bool
}

func (*Ticket) TypeName() string { return "Ticket" }
func (t *Ticket) GetID() uuid.UUID { return t.Id }
func (t *Ticket) SetID(id uuid.UUID) { t.Id = id }

const memberOf = "MEMBER_OF"
