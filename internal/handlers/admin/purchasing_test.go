package admin_test

import (
	"net/http"
	"regexp"
	"strings"
	"testing"

	"stockwatch/internal/handlers/admin"
	"stockwatch/internal/license"
	"stockwatch/internal/models"
	"stockwatch/internal/purchasing"
	"stockwatch/internal/testutil"
)

var poNumberRe = regexp.MustCompile(`^PO-\d{6}-\d{4}$`)

func TestPurchaseOrderLifecycle(t *testing.T) {
	f := setup(t)
	p := testutil.SeedProduct(t, f.db, "MUG-1", "Mug", "2.50", 0)
	testutil.SeedSupplier(t, f.db, p.ID, "acme@example.com", 5, "email")
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com", "e@example.com", "f@example.com"} {
		testutil.SeedWaitlist(t, f.db, p.ID, email, "")
	}

	w := call(withID(f.h.SuggestPOQuantity, id(p.ID)), "GET", "/", nil, license.Pro)
	if got := decode[map[string]int](t, w); got["quantity"] != 12 {
		t.Errorf("suggestion = %+v", got)
	}

	if w := call(f.h.GeneratePO, "POST", "/", purchasing.GenerateRequest{ProductID: p.ID}, license.Free); w.Code != http.StatusForbidden {
		t.Errorf("free gate: %d", w.Code)
	}

	w = call(f.h.GeneratePO, "POST", "/", purchasing.GenerateRequest{ProductID: p.ID}, license.Pro)
	if w.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	po := decode[struct {
		PO models.PurchaseOrder `json:"purchase_order"`
	}](t, w).PO
	if !poNumberRe.MatchString(po.PONumber) || po.Quantity != 12 || po.TotalAmount != "30.00" || po.Status != "draft" {
		t.Errorf("po = %+v", po)
	}

	w = call(withID(f.h.PODocument, po.PONumber), "GET", "/", nil, license.Pro)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), po.PONumber) {
		t.Errorf("document: %d", w.Code)
	}

	w = call(withID(f.h.SendPO, po.PONumber), "POST", "/", nil, license.Pro)
	if w.Code != http.StatusOK || decode[models.PurchaseOrder](t, w).Status != "sent" {
		t.Errorf("send: %d %s", w.Code, w.Body.String())
	}
	msgs := f.mail.To("acme@example.com")
	if len(msgs) != 1 || len(msgs[0].Attachments) != 1 {
		t.Errorf("po email = %+v", msgs)
	}

	if w := call(withID(f.h.UpdatePOStatus, po.PONumber), "PUT", "/", admin.StatusRequest{Status: "shipped"}, license.Pro); w.Code != http.StatusBadRequest {
		t.Errorf("bad status: %d", w.Code)
	}
	if w := call(withID(f.h.UpdatePOStatus, po.PONumber), "PUT", "/", admin.StatusRequest{Status: "received"}, license.Pro); w.Code != http.StatusOK {
		t.Errorf("status: %d", w.Code)
	}
	if w := call(withID(f.h.GetPO, "PO-190001-0001"), "GET", "/", nil, license.Pro); w.Code != http.StatusNotFound {
		t.Errorf("unknown po: %d", w.Code)
	}

	w = call(f.h.ListPOs, "GET", "/api/v1/admin/purchase-orders?product_id="+id(p.ID), nil, license.Pro)
	if list := decode[[]models.PurchaseOrder](t, w); len(list) != 1 || list[0].Status != "received" {
		t.Errorf("list = %+v", list)
	}
}
