package config

// AllCategories is the selector entry that means "no category filter".
const AllCategories = "All Categories"

// Category pairs a human-readable storefront category with its search API id.
type Category struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// categories is the fixed category table, in storefront menu order.
var categories = []Category{
	{"Computers & Tablets", "20001"},
	{"Best Buy Mobile", "20006"},
	{"Office Supplies & Ink", "30957"},
	{"TV & Home Theatre", "20003"},
	{"Audio", "659699"},
	{"Cameras, Camcorders & Drones", "20005"},
	{"Car Electronics and GPS", "20004"},
	{"Appliances", "26517"},
	{"Smart Home", "30438"},
	{"Home Living", "homegardentools"},
	{"Baby & Maternity", "881392"},
	{"Video Games", "26516"},
	{"Wearable Technology", "34444"},
	{"Health & Fitness", "882185"},
	{"Sports, Recreation & Transportation", "sportsrecreation"},
	{"Movies & Music", "20002"},
	{"Musical Instruments & Equipment", "20343"},
	{"Toys, Games & Education", "21361"},
	{"Beauty", "882187"},
	{"Personal Care", "882186"},
	{"Travel, Luggage & Bags", "31698"},
	{"Fashion, Watches & Jewelry", "10159983"},
	{"Gift Cards", "blta5578c9ddd209cd8"},
}

// Categories returns the category table, with the "all" entry first.
func Categories() []Category {
	out := make([]Category, 0, len(categories)+1)
	out = append(out, Category{Name: AllCategories, ID: ""})
	out = append(out, categories...)
	return out
}

// CategoryID resolves a category name to its search API id. The "all" entry
// resolves to an empty id, which the search endpoint treats as no filter.
func CategoryID(name string) (string, bool) {
	if name == "" || name == AllCategories {
		return "", true
	}
	for _, c := range categories {
		if c.Name == name {
			return c.ID, true
		}
	}
	return "", false
}
