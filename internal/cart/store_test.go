package cart_test

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

func paneerTikka() cart.MenuItem {
	return cart.MenuItem{
		ID:    "paneer-tikka",
		Name:  "Paneer Tikka",
		Price: decimal.RequireFromString("180.00"),
		Addons: []cart.Addon{
			{ID: "extra-cheese", Name: "Extra Cheese", Price: decimal.RequireFromString("30")},
			{ID: "mint-dip", Name: "Mint Dip", Price: decimal.RequireFromString("15.50")},
		},
		Variants: []cart.Variant{
			{ID: "half", Name: "Half", Surcharge: decimal.Zero},
			{ID: "full", Name: "Full", Surcharge: decimal.RequireFromString("90")},
		},
	}
}

func TestStore_Add_MergesIdenticalKey(t *testing.T) {
	s := cart.NewStore(storage.NewMemory())

	first, err := s.Add(paneerTikka(), "less spicy", []string{"mint-dip", "extra-cheese"}, "full")
	require.NoError(t, err)
	second, err := s.Add(paneerTikka(), " less spicy ", []string{"extra-cheese", "mint-dip"}, "full")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 2, s.ItemCount())
}

func TestStore_Add_DistinctCustomizations(t *testing.T) {
	tests := []struct {
		name         string
		instructions string
		addons       []string
		variant      string
	}{
		{name: "different_addons", addons: []string{"extra-cheese"}, variant: "half"},
		{name: "different_variant", addons: []string{"mint-dip"}, variant: "full"},
		{name: "different_instructions", instructions: "no onion", addons: []string{"mint-dip"}, variant: "half"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cart.NewStore(storage.NewMemory())
			_, err := s.Add(paneerTikka(), "", []string{"mint-dip"}, "half")
			require.NoError(t, err)

			_, err = s.Add(paneerTikka(), tt.instructions, tt.addons, tt.variant)
			require.NoError(t, err)

			assert.Len(t, s.Lines(), 2)
			assert.Equal(t, 2, s.ItemCount())
		})
	}
}

func TestStore_Add_ResolvesUnitPrice(t *testing.T) {
	s := cart.NewStore(storage.NewMemory())

	line, err := s.Add(paneerTikka(), "", []string{"extra-cheese", "mint-dip"}, "full")
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("315.50").Equal(line.UnitPrice), line.UnitPrice.String())
	assert.Equal(t, []string{"Extra Cheese", "Mint Dip"}, line.AddonNames)
	assert.Equal(t, "Full", line.VariantName)
}

func TestStore_Add_PriceSnapshotSurvivesCatalogChange(t *testing.T) {
	s := cart.NewStore(storage.NewMemory())
	item := paneerTikka()

	_, err := s.Add(item, "", nil, "")
	require.NoError(t, err)

	item.Price = decimal.RequireFromString("999")
	line, err := s.Add(item, "", nil, "")
	require.NoError(t, err)

	assert.Equal(t, 2, line.Quantity)
	assert.True(t, decimal.RequireFromString("180").Equal(line.UnitPrice))
}

func TestStore_Add_Rejects(t *testing.T) {
	s := cart.NewStore(storage.NewMemory())

	_, err := s.Add(paneerTikka(), "", []string{"truffle"}, "")
	assert.ErrorIs(t, err, cart.ErrUnknownAddon)

	_, err = s.Add(paneerTikka(), "", nil, "jumbo")
	assert.ErrorIs(t, err, cart.ErrUnknownVariant)

	_, err = s.Add(cart.MenuItem{Name: "nameless"}, "", nil, "")
	assert.ErrorIs(t, err, cart.ErrMissingItemID)

	assert.True(t, s.IsEmpty())
}

func TestStore_Add_RejectsNegativeUnitPrice(t *testing.T) {
	tests := []struct {
		name      string
		item      cart.MenuItem
		addonIDs  []string
		variantID string
		wantErr   error
	}{
		{
			name:    "negative_base",
			item:    cart.MenuItem{ID: "refund", Name: "Refund", Price: decimal.RequireFromString("-5")},
			wantErr: cart.ErrNegativePrice,
		},
		{
			name: "negative_addon_outweighs_base",
			item: cart.MenuItem{ID: "chai", Name: "Chai", Price: decimal.RequireFromString("20"), Addons: []cart.Addon{
				{ID: "voucher", Name: "Voucher", Price: decimal.RequireFromString("-50")},
			}},
			addonIDs: []string{"voucher"},
			wantErr:  cart.ErrNegativePrice,
		},
		{
			name: "discounting_variant_stays_positive",
			item: cart.MenuItem{ID: "lassi", Name: "Lassi", Price: decimal.RequireFromString("60"), Variants: []cart.Variant{
				{ID: "small", Name: "Small", Surcharge: decimal.RequireFromString("-20")},
			}},
			variantID: "small",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := storage.NewMemory()
			s := cart.NewStore(kv)

			_, err := s.Add(tt.item, "", tt.addonIDs, tt.variantID)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, s.IsEmpty())
				return
			}
			require.NoError(t, err)
			// what was accepted must survive a reload
			assert.Len(t, cart.NewStore(kv).Lines(), 1)
		})
	}
}

func TestStore_Remove_DeletesWholeLine(t *testing.T) {
	s := cart.NewStore(storage.NewMemory())

	line, _ := s.Add(paneerTikka(), "", nil, "")
	_, _ = s.Add(paneerTikka(), "", nil, "")
	_, _ = s.Add(paneerTikka(), "", nil, "")

	require.NoError(t, s.Remove(line.ID))
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.ItemCount())

	assert.ErrorIs(t, s.Remove(uuid.Must(uuid.NewV4())), cart.ErrLineNotFound)
}

func TestStore_HydratesFromStorage(t *testing.T) {
	kv := storage.NewMemory()
	s := cart.NewStore(kv)
	_, err := s.Add(paneerTikka(), "", []string{"mint-dip"}, "half")
	require.NoError(t, err)
	_, err = s.Add(paneerTikka(), "", []string{"mint-dip"}, "half")
	require.NoError(t, err)

	want := s.Lines()[0]
	reloaded := cart.NewStore(kv).Lines()
	require.Len(t, reloaded, 1)
	got := reloaded[0]
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, want.AddonIDs, got.AddonIDs)
	assert.True(t, want.UnitPrice.Equal(got.UnitPrice))
}

func TestStore_ClearThenReloadIsEmpty(t *testing.T) {
	kv := storage.NewMemory()
	s := cart.NewStore(kv)
	_, _ = s.Add(paneerTikka(), "", nil, "")

	s.Clear()

	assert.True(t, cart.NewStore(kv).IsEmpty())
}

func TestStore_MalformedStorageIsEmpty(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put("cart", []byte(`{"definitely":"not a cart"`)))

	s := cart.NewStore(kv)
	assert.True(t, s.IsEmpty())

	_, err := s.Add(paneerTikka(), "", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.NewStore(kv).ItemCount())
}

func TestStore_DropsInvalidPersistedLines(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Put("cart", []byte(`[{"id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","menu_item_id":"x","unit_price":"10","quantity":0}]`)))

	assert.True(t, cart.NewStore(kv).IsEmpty())
}
