package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_Order(t *testing.T) {
	want := []string{
		"UK_WINLIN", "UK_MAC", "IE_WINLIN", "IE_MAC", "US_WINLIN", "US_MAC",
		"DE_WINLIN", "DE_MAC", "FR_WINLIN", "FR_MAC", "ES_WINLIN", "ES_MAC",
		"IT_WINLIN", "IT_MAC", "PT_PT_WINLIN", "PT_PT_MAC", "PT_BR_WINLIN", "PT_BR_MAC",
		"SE_WINLIN", "NO_WINLIN", "DK_WINLIN", "FI_WINLIN", "CH_DE_WINLIN", "CH_FR_WINLIN",
		"TR_WINLIN", "TR_MAC",
	}

	var got []string
	for _, l := range All() {
		got = append(got, l.Value)
	}
	assert.Equal(t, want, got, "layouts MUST be listed in display order")
}

func TestLookup(t *testing.T) {
	l, ok := Lookup(" pt_br_mac ")
	require.True(t, ok)
	assert.Equal(t, "PT_BR_MAC", l.Value)
	assert.Equal(t, "Layout PT-BR Mac", l.Label)

	_, ok = Lookup("XX_WINLIN")
	assert.False(t, ok)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Layout UK Windows/Linux", Label("UK_WINLIN"))
	assert.Equal(t, "Layout CH-FR Windows/Linux", Label("CH_FR_WINLIN"))
	assert.Equal(t, "UNKNOWN", Label("UNKNOWN"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Default))
	assert.False(t, Valid("SE_MAC"), "Nordic layouts have no Mac variant")
	assert.False(t, Valid(""))
}
