package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
)

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildInvoiceJSONSchema(constants.AsStringSlice())

	require.NoError(t, ValidateJSONAgainstSchema(schema, []byte(`{"supplier_name":"Acme","total_amount":12.5,"currency":"AUD"}`)))

	err := ValidateJSONAgainstSchema(schema, []byte(`{"total_amount":"twelve","currency":"dollars"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json does not match schema")
	assert.Contains(t, err.Error(), "/total_amount")
	assert.Contains(t, err.Error(), "/currency")

	assert.Error(t, ValidateJSONAgainstSchema(schema, []byte(`not json`)))
}
