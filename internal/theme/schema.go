package theme

import (
	"github.com/invopop/jsonschema"

	internalschema "riceserver/internal/schema"
)

const (
	SchemaTheme  = "theme"
	SchemaModule = "module"
	SchemaConfig = "config"
)

func init() {
	_ = internalschema.Register(SchemaTheme, themeSchema)
	_ = internalschema.Register(SchemaModule, moduleSchema)
	_ = internalschema.Register(SchemaConfig, configSchema)
}

func themeSchema() *jsonschema.Schema {
	s := internalschema.Generate(Theme{})
	s.Title = "theme.json"
	return s
}

func moduleSchema() *jsonschema.Schema {
	s := internalschema.Generate(Manifest{})
	s.Title = "module manifest"
	return s
}

func configSchema() *jsonschema.Schema {
	s := internalschema.Generate(Config{})
	s.Title = "config.json"
	return s
}
