package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/givebridge/givebridge/internal/auth"
	"github.com/givebridge/givebridge/internal/gate"
	"github.com/givebridge/givebridge/internal/routes"
	"github.com/givebridge/givebridge/internal/session"
)

// roleUnresolved stands for a token whose user could not be loaded
const roleUnresolved = "unresolved"

// NewCheckCmd creates the check command
func NewCheckCmd() *cobra.Command {
	var (
		role      string
		withToken bool
		routeFile string
	)

	cmd := &cobra.Command{
		Use:   "check PATH",
		Short: "Show what the access gate does with a request",
		Long: `Show the gate decision for a hypothetical request to PATH.

Without --token or --role the request is anonymous. With --token and no
--role you are asked to pick the signed-in user's role. Use the role
"unresolved" for a token whose user no longer exists.`,
		Example: `  givebridge check /admin/users --role volunteer
  givebridge check /donor_login --token`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := loadTable(routeFile)
			if err != nil {
				return err
			}

			if role == "" && withToken {
				role, err = promptRole()
				if err != nil {
					return err
				}
			}

			return runCheck(cmd.OutOrStdout(), table, args[0], role)
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role of the signed-in user (admin, donor, volunteer, unresolved or any other value)")
	cmd.Flags().BoolVar(&withToken, "token", false, "The request carries a session token")
	cmd.Flags().StringVar(&routeFile, "routes", "", "YAML route table (defaults to the compiled-in table)")

	return cmd
}

func runCheck(out io.Writer, table *routes.Table, path, role string) error {
	src := &staticSource{}
	switch role {
	case "":
	case roleUnresolved:
		src.token = "cli"
	default:
		src.token = "cli"
		src.user = &session.User{ID: "cli", Role: auth.ParseRole(role)}
	}

	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with /: %q", path)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	sess := session.Resolve(req.Context(), src, req)
	class := table.Classify(path)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "PATH\t%s\n", path)
	fmt.Fprintf(w, "CLASS\t%s\n", describeClass(class))
	fmt.Fprintf(w, "SESSION\t%s\n", describeSession(sess, role))

	if !table.Matches(path) {
		fmt.Fprintf(w, "DECISION\tnot gated\n")
		return nil
	}

	decision := gate.Decide(class, sess)
	if decision.Action == gate.Redirect {
		fmt.Fprintf(w, "DECISION\tredirect %s (%s)\n", decision.Location, decision.Rule)
		return nil
	}
	fmt.Fprintf(w, "DECISION\tallow\n")
	return nil
}

func describeClass(class routes.Class) string {
	var names []string
	if class.Public {
		names = append(names, "public")
	}
	if class.Admin {
		names = append(names, "admin")
	}
	if class.User {
		names = append(names, "user")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func describeSession(sess session.Session, role string) string {
	switch {
	case !sess.Authenticated():
		return "anonymous"
	case !sess.Resolved():
		return "token, user not found"
	case !sess.User.Role.Known():
		return fmt.Sprintf("token, unrecognized role %q", role)
	default:
		return "token, role " + sess.User.Role.String()
	}
}

// staticSource is a session source with a fixed answer
type staticSource struct {
	token string
	user  *session.User
}

func (s *staticSource) Token(*http.Request) (string, bool) {
	return s.token, s.token != ""
}

func (s *staticSource) UserData(context.Context, string) (*session.User, bool) {
	return s.user, s.user != nil
}
