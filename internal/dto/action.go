package dto

import (
	"strconv"
	"strings"
)

// Callback action tokens. The wire format is "<action>[:<id>]".
const (
	ActionCatalog      = "catalog"
	ActionCartOpen     = "cart_open"
	ActionCartClear    = "cart_clear"
	ActionCartCheckout = "cart_checkout"
	ActionProduct      = "product"
	ActionCartAdd      = "cart_add"
	ActionOrderNow     = "order"
)

type Action struct {
	Name  string
	ID    int64
	HasID bool
}

// ParseAction splits callback data. A present but non-numeric id yields
// ok == false.
func ParseAction(data string) (Action, bool) {
	name, rawID, hasID := strings.Cut(data, ":")
	if name == "" {
		return Action{}, false
	}
	if !hasID {
		return Action{Name: name}, true
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Action{}, false
	}
	return Action{Name: name, ID: id, HasID: true}, true
}

func ActionData(name string, id int64) string {
	return name + ":" + strconv.FormatInt(id, 10)
}
