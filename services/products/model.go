package products

type Product struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PriceCents  int64  `json:"priceMinorUnits"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// DefaultCatalog seeds a fresh store so the shop is browsable out of the box.
func DefaultCatalog() []Product {
	return []Product{
		{ID: "dragon", Title: "Squeaky dragon", PriceCents: 1500, Description: "Plush dragon with a triple-stitched squeaker", Image: "/img/dragon.webp"},
		{ID: "corncob", Title: "Corn cob chew", PriceCents: 1600, Description: "Rubber corn cob for heavy chewers", Image: "/img/corncob.webp"},
		{ID: "rope-knot", Title: "Rope knot", PriceCents: 900, Description: "Cotton tug rope, washable", Image: "/img/rope.webp"},
		{ID: "ball-l", Title: "Bouncy ball (large)", PriceCents: 700, Description: "Natural rubber, floats", Image: "/img/ball.webp"},
	}
}
