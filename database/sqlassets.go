package sqlassets

import _ "embed"

//go:embed schema/providers.sql
var ProvidersSQL string
