package commands

import (
	"fmt"

	"github.com/manifoldco/promptui"

	"github.com/givebridge/givebridge/internal/routes"
)

// loadTable returns the route table from file, or the compiled-in table
// when file is empty.
func loadTable(file string) (*routes.Table, error) {
	if file == "" {
		return routes.Default(), nil
	}
	table, err := routes.LoadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load route table: %w", err)
	}
	return table, nil
}

// roleOption is one entry of the interactive role picker
type roleOption struct {
	Label string
	Role  string
}

var roleOptions = []roleOption{
	{Label: "admin", Role: "admin"},
	{Label: "donor", Role: "donor"},
	{Label: "volunteer", Role: "volunteer"},
	{Label: "unrecognized role", Role: "guest"},
	{Label: "unresolved (user not found)", Role: roleUnresolved},
}

// promptRole asks for the signed-in user's role. Replaced in tests.
var promptRole = func() (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "{{ .Label | green }}",
	}

	prompt := promptui.Select{
		Label:     "Role of the signed-in user",
		Items:     roleOptions,
		Templates: templates,
		Size:      len(roleOptions),
	}

	index, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("role selection cancelled: %w", err)
	}

	return roleOptions[index].Role, nil
}
