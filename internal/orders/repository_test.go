package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printhouse/textile-erp/internal/platform/db/dbtest"
	"github.com/printhouse/textile-erp/internal/pricing"
)

func storeOrder(t *testing.T, repo Repository, order Order) *Order {
	t.Helper()
	ctx := context.Background()
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		for i := range order.Lines {
			order.Lines[i].OrderID = id
			if order.Lines[i].ID, err = tx.InsertLine(ctx, order.Lines[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	stored, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	return stored
}

func TestRepositoryStoresCashOrderWithoutProof(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	line := Line{
		LineNo:   1,
		Design:   pricing.ExistingDesign{PresetID: 1},
		Fabric:   pricing.FabricChoice{Type: pricing.FabricSublimation, OrderType: pricing.OrderFull, Source: pricing.FactorySource{FabricID: 7}},
		Quantity: 10,
	}
	line.SetPrice(150)

	stored := storeOrder(t, repo, Order{
		UserID:        5,
		CustomerType:  "business",
		Kind:          KindOrder,
		Status:        StatusSubmitted,
		PaymentMethod: PaymentCash,
		Lines:         []Line{line},
	})

	assert.Nil(t, stored.PaymentProofRef)
	assert.Nil(t, stored.InvoiceRef)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, pricing.ExistingDesign{PresetID: 1}, stored.Lines[0].Design)
	assert.Equal(t, pricing.FactorySource{FabricID: 7}, stored.Lines[0].Fabric.Source)
	assert.Equal(t, pricing.Money(1500), stored.Lines[0].TotalPrice)
}

func TestRepositoryStoresQuotationWithoutDesign(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	stored := storeOrder(t, repo, Order{
		UserID:       9,
		CustomerType: "individual",
		Kind:         KindQuotation,
		Status:       StatusSubmitted,
		Lines: []Line{{
			LineNo:   1,
			Fabric:   pricing.FabricChoice{Type: pricing.FabricNatural, OrderType: pricing.OrderSample, Source: pricing.UnsureSource{Inquiry: "linen?"}},
			Quantity: 1,
		}},
	})
	require.Len(t, stored.Lines, 1)
	assert.Nil(t, stored.Lines[0].Design)
	assert.Nil(t, stored.PaymentProofRef)
	assert.Empty(t, stored.PaymentMethod)

	priced := stored.Lines[0]
	priced.SetPrice(220)
	err := repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateLine(ctx, priced); err != nil {
			return err
		}
		return tx.ConvertQuotation(ctx, stored.ID, PaymentBankTransfer)
	})
	require.NoError(t, err)

	converted, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, KindOrder, converted.Kind)
	assert.Equal(t, PaymentBankTransfer, converted.PaymentMethod)
	assert.Nil(t, converted.Lines[0].Design)
	assert.Equal(t, pricing.Money(220), converted.Lines[0].UnitPrice)
}

func TestRepositoryInvoiceRefAndStatus(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	proof := "proofs/1.png"
	stored := storeOrder(t, repo, Order{
		UserID:          3,
		CustomerType:    "business",
		Kind:            KindOrder,
		Status:          StatusSubmitted,
		PaymentMethod:   PaymentInstapay,
		PaymentProofRef: &proof,
		Lines: []Line{{
			LineNo:   1,
			Design:   pricing.UploadedDesign{FileRef: "files/a.png"},
			Fabric:   pricing.FabricChoice{Type: pricing.FabricSublimation, OrderType: pricing.OrderFull, Source: pricing.FactorySource{FabricID: 7}},
			Quantity: 12,
		}},
	})
	require.NotNil(t, stored.PaymentProofRef)
	assert.Equal(t, proof, *stored.PaymentProofRef)

	require.NoError(t, repo.SetInvoiceRef(ctx, []int64{stored.ID}, "INV-1-0001"))
	require.NoError(t, repo.UpdateStatus(ctx, stored.ID, StatusSubmitted, StatusInvoicePending))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, stored.ID, StatusSubmitted, StatusCancelled), ErrStatusChanged)

	got, err := repo.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got.InvoiceRef)
	assert.Equal(t, "INV-1-0001", *got.InvoiceRef)
	assert.Equal(t, StatusInvoicePending, got.Status)

	require.NoError(t, repo.ClearInvoiceRef(ctx, "INV-1-0001"))
	mine, err := repo.ListByUser(ctx, 3)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Nil(t, mine[0].InvoiceRef)
}
