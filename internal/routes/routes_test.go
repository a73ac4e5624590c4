package routes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault_Classify(t *testing.T) {
	table := Default()

	tests := []struct {
		path string
		want Class
	}{
		{path: "/donor_login", want: Class{Public: true}},
		{path: "/volunteer_login", want: Class{Public: true}},
		{path: "/register", want: Class{Public: true}},
		{path: "/register/volunteer", want: Class{Public: true}},
		{path: "/forgot-password", want: Class{Public: true}},
		{path: "/admin", want: Class{Admin: true}},
		{path: "/admin/ngos", want: Class{Admin: true}},
		{path: "/admin/dashboard", want: Class{Admin: true}},
		{path: "/user/reports", want: Class{User: true}},
		{path: "/user/donor/dashboard", want: Class{User: true}},
		{path: "/", want: Class{}},
		{path: "/about", want: Class{}},
		{path: "", want: Class{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Classify(tt.path))
		})
	}
}

func TestDefault_Matches(t *testing.T) {
	table := Default()

	matched := []string{"/admin", "/admin/ngos", "/user", "/user/volunteer/dashboard", "/donor_login", "/register", "/forgot-password"}
	for _, p := range matched {
		assert.True(t, table.Matches(p), p)
	}

	unmatched := []string{"/", "/health", "/api/auth/login", "/administrator", "/users", "/donor_login/extra"}
	for _, p := range unmatched {
		assert.False(t, table.Matches(p), p)
	}
}

func TestNew_RejectsOverlap(t *testing.T) {
	spec := DefaultSpec()
	spec.Public = append(spec.Public, "/admin_login")

	_, err := New(spec)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlappingPrefixes))
}

func TestNew_RejectsInvalidPrefixes(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Spec)
	}{
		{name: "relative prefix", edit: func(s *Spec) { s.Admin = []string{"admin"} }},
		{name: "whitespace", edit: func(s *Spec) { s.User = []string{"/us er"} }},
		{name: "empty public", edit: func(s *Spec) { s.Public = nil }},
		{name: "bad matcher", edit: func(s *Spec) { s.Matchers = []string{"admin/*"} }},
		{name: "wildcard in middle", edit: func(s *Spec) { s.Matchers = []string{"/a/*/b"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultSpec()
			tt.edit(&spec)
			_, err := New(spec)
			assert.Error(t, err)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	spec := DefaultSpec()
	table, err := New(spec)
	require.NoError(t, err)

	spec.Admin[0] = "/elsewhere"
	assert.True(t, table.Classify("/admin/ngos").Admin)

	out := table.Spec()
	out.User[0] = "/mutated"
	assert.True(t, table.Classify("/user/reports").User)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	content := `public:
  - /login
  - /signup
admin:
  - /backoffice
user:
  - /app
matchers:
  - /backoffice/*
  - /app/*
  - /login
  - /signup
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	table, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, Class{Admin: true}, table.Classify("/backoffice/users"))
	assert.Equal(t, Class{Public: true}, table.Classify("/login"))
	assert.True(t, table.Matches("/app/home"))
	assert.False(t, table.Matches("/admin"))
}

func TestLoadFile_UnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	content := "public: [/login]\nadmin: [/admin]\nuser: [/user]\nextra: [/x]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMarshalYAML_RoundTrip(t *testing.T) {
	data, err := yaml.Marshal(Default())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Spec(), table.Spec())
}
