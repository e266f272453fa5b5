package models

// CategoryUncategorized is assigned when no strategy matches.
const CategoryUncategorized = "Uncategorized"

// Category represents a movement category
type Category struct {
	Name        string
	Description string
}

// CategoryConfig represents a category configuration in the YAML file
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CategoriesConfig represents the structure of the categories YAML file
type CategoriesConfig struct {
	Categories []CategoryConfig `yaml:"categories"`
}

// File permissions
const (
	PermissionConfigFile = 0600
	PermissionDirectory  = 0750
)
