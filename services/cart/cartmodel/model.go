package cartmodel

import "time"

// Line is a single product entry in a cart. Prices are in minor units
// (cents), so derived totals stay exact integer arithmetic.
type Line struct {
	ProductID string
	Title     string
	UnitPrice int64
	Quantity  int
	ImageRef  string
}

func (l Line) LinePrice() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Cart holds at most one line per product-id, ordered by insertion.
// All transition operations are synchronous, side-effect free and never fail:
// malformed input is accepted as-is and surfaces as a display artifact,
// never as a blocked cart.
type Cart struct {
	ShopperUID   string
	Lines        []Line
	CreatedAt    time.Time
	LastModified *time.Time
}

func New(shopperUID string, now time.Time) Cart {
	return Cart{
		ShopperUID: shopperUID,
		Lines:      []Line{},
		CreatedAt:  now,
	}
}

// AddLine accumulates the quantity onto an existing line for the same
// product, or appends a new line. Zero and negative quantities are accepted
// without rejection: the surrounding UI is assumed to guard against them.
func (c *Cart) AddLine(line Line) {
	for i, existing := range c.Lines {
		if existing.ProductID == line.ProductID {
			c.Lines[i].Quantity += line.Quantity
			return
		}
	}

	c.Lines = append(c.Lines, line)
}

// SetQuantity replaces (not accumulates) the quantity of an existing line.
// A quantity of zero or less removes the line: a cart never exposes a line
// with a non-positive quantity.
func (c *Cart) SetQuantity(productID string, quantity int) {
	if quantity <= 0 {
		c.RemoveLine(productID)
		return
	}

	for i, existing := range c.Lines {
		if existing.ProductID == productID {
			c.Lines[i].Quantity = quantity
			return
		}
	}
}

// RemoveLine removes the line for the given product. Removing an absent
// line is a no-op, not an error.
func (c *Cart) RemoveLine(productID string) {
	for i, existing := range c.Lines {
		if existing.ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) Clear() {
	c.Lines = []Line{}
}

// Total is recomputed on every call, there is no cached aggregate to go stale.
func (c Cart) Total() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.LinePrice()
	}

	return total
}

func (c Cart) ItemCount() int {
	count := 0
	for _, line := range c.Lines {
		count += line.Quantity
	}

	return count
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Snapshot returns a deep copy of the lines, so that an order being
// submitted cannot be altered by a concurrent cart edit.
func (c Cart) Snapshot() []Line {
	lines := make([]Line, len(c.Lines))
	copy(lines, c.Lines)

	return lines
}
