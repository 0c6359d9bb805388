// Package event is the catalog of webhook event types the platform can emit.
// The catalog is closed: every valid event, its description, and its category
// come from the single definition table below, so the categories always
// partition the full event set. There is no runtime registration.
package event

import (
	"fmt"
	"sort"
)

// Type identifies a webhook event emitted by the platform.
type Type string

const (
	PetCreated Type = "pet.created"
	PetUpdated Type = "pet.updated"
	PetDeleted Type = "pet.deleted"

	CustomerCreated Type = "customer.created"
	CustomerUpdated Type = "customer.updated"
	CustomerDeleted Type = "customer.deleted"

	AppointmentCreated   Type = "appointment.created"
	AppointmentUpdated   Type = "appointment.updated"
	AppointmentCancelled Type = "appointment.cancelled"
	AppointmentCompleted Type = "appointment.completed"

	SaleCompleted       Type = "sale.completed"
	InvoiceCreated      Type = "invoice.created"
	InvoicePaid         Type = "invoice.paid"
	SubscriptionUpdated Type = "subscription.updated"

	// TestPing is the synthetic event used by the endpoint test utility. It
	// is delivered regardless of an endpoint's subscriptions.
	TestPing Type = "test.ping"
)

// Category names for grouping events in the configuration UI.
const (
	CategoryPets         = "pets"
	CategoryCustomers    = "customers"
	CategoryAppointments = "appointments"
	CategoryBilling      = "billing"
	CategorySystem       = "system"
)

type definition struct {
	Type        Type
	Description string
	Category    string
}

// definitions is the single source of truth. Registry and category maps are
// derived from it, never maintained separately.
var definitions = []definition{
	{PetCreated, "A pet profile was created", CategoryPets},
	{PetUpdated, "A pet profile was updated", CategoryPets},
	{PetDeleted, "A pet profile was deleted", CategoryPets},

	{CustomerCreated, "A customer was created", CategoryCustomers},
	{CustomerUpdated, "A customer was updated", CategoryCustomers},
	{CustomerDeleted, "A customer was deleted", CategoryCustomers},

	{AppointmentCreated, "An appointment was booked", CategoryAppointments},
	{AppointmentUpdated, "An appointment was rescheduled or edited", CategoryAppointments},
	{AppointmentCancelled, "An appointment was cancelled", CategoryAppointments},
	{AppointmentCompleted, "An appointment was completed", CategoryAppointments},

	{SaleCompleted, "A point-of-sale transaction was completed", CategoryBilling},
	{InvoiceCreated, "An invoice was issued", CategoryBilling},
	{InvoicePaid, "An invoice was paid", CategoryBilling},
	{SubscriptionUpdated, "A subscription plan changed", CategoryBilling},

	{TestPing, "Synthetic event sent by the webhook test utility", CategorySystem},
}

var (
	registry   = make(map[Type]definition, len(definitions))
	categories = make(map[string][]Type)
)

func init() {
	for _, d := range definitions {
		if _, dup := registry[d.Type]; dup {
			panic(fmt.Sprintf("event: duplicate definition for %q", d.Type))
		}
		registry[d.Type] = d
		categories[d.Category] = append(categories[d.Category], d.Type)
	}
}

// IsValid reports whether name is a known event type.
func IsValid(name string) bool {
	_, ok := registry[Type(name)]
	return ok
}

// Validate checks a batch of event names and returns every unrecognized
// entry, not just the first. An empty batch is valid.
func Validate(names []string) (bool, []string) {
	var invalid []string
	for _, n := range names {
		if !IsValid(n) {
			invalid = append(invalid, n)
		}
	}
	return len(invalid) == 0, invalid
}

// Description returns the human description of t, or "" for unknown types.
func Description(t Type) string {
	return registry[t].Description
}

// Category returns the category t belongs to, or "" for unknown types.
func Category(t Type) string {
	return registry[t].Category
}

// All returns every valid event type, sorted.
func All() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Categories returns a copy of the category grouping.
func Categories() map[string][]Type {
	out := make(map[string][]Type, len(categories))
	for c, types := range categories {
		out[c] = append([]Type(nil), types...)
	}
	return out
}
