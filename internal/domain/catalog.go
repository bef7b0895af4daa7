package domain

import (
	"sort"
	"strings"
)

type Service struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"durationMinutes"`
	Color           string  `json:"color,omitempty"`
}

// Catalog is an immutable serviceId -> Service mapping. It is built once at startup and passed
// by reference to every component that prices or validates.
type Catalog struct {
	byID  map[string]Service
	order []string
}

func NewCatalog(services ...Service) *Catalog {
	c := &Catalog{byID: make(map[string]Service, len(services))}
	for _, s := range services {
		if _, dup := c.byID[s.ID]; !dup {
			c.order = append(c.order, s.ID)
		}
		c.byID[s.ID] = s
	}
	return c
}

// DefaultCatalog returns the shop's standard menu.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Service{ID: "1", Name: "Standard Haircut", Price: 35, DurationMinutes: 30, Color: "blue"},
		Service{ID: "2", Name: "Student Haircut", Price: 25, DurationMinutes: 30, Color: "emerald"},
		Service{ID: "3", Name: "Beard Trim", Price: 25, DurationMinutes: 30, Color: "orange"},
		Service{ID: "4", Name: "Clean Shave", Price: 30, DurationMinutes: 30, Color: "purple"},
		Service{ID: "5", Name: "Vibes Experience", Price: 55, DurationMinutes: 60, Color: "pink"},
		Service{ID: "6", Name: "Good Vibes Experience", Price: 70, DurationMinutes: 60, Color: "rose"},
		Service{ID: "7", Name: "Ear/Nose Wax", Price: 8, DurationMinutes: 15, Color: "teal"},
	)
}

func (c *Catalog) Lookup(id string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	s, ok := c.byID[id]
	return s, ok
}

// FindByName matches a service name case-insensitively, ignoring surrounding whitespace.
func (c *Catalog) FindByName(name string) (Service, bool) {
	if c == nil {
		return Service{}, false
	}
	name = strings.TrimSpace(name)
	for _, id := range c.order {
		if s := c.byID[id]; strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Service{}, false
}

// All returns the services in registration order.
func (c *Catalog) All() []Service {
	if c == nil {
		return nil
	}
	out := make([]Service, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ByPrice is used by listings that want the cheapest services first.
func (c *Catalog) ByPrice() []Service {
	out := c.All()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}
