package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	samplesvc "github.com/teleos-scientific/tlink-backend/internal/samples"
	"github.com/teleos-scientific/tlink-backend/pkg/db/models"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	pkgerrors "github.com/teleos-scientific/tlink-backend/pkg/errors"
	"github.com/teleos-scientific/tlink-backend/pkg/pagination"
)

type stubLotService struct {
	registerFn func(ctx context.Context, input samplesvc.RegisterLotInput) (*models.SampleLot, error)
	listFn     func(ctx context.Context, params pagination.Params) (*samplesvc.LotList, error)
	getErr     error
}

func (s *stubLotService) RegisterLot(ctx context.Context, input samplesvc.RegisterLotInput) (*models.SampleLot, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, input)
	}
	return &models.SampleLot{ID: uuid.New()}, nil
}

func (s *stubLotService) AdjustQuantity(ctx context.Context, lotID uuid.UUID, input samplesvc.AdjustLotInput) (*models.SampleLot, error) {
	return &models.SampleLot{ID: lotID}, nil
}

func (s *stubLotService) GetLot(ctx context.Context, id uuid.UUID) (*models.SampleLot, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &models.SampleLot{ID: id}, nil
}

func (s *stubLotService) ListLots(ctx context.Context, params pagination.Params) (*samplesvc.LotList, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &samplesvc.LotList{}, nil
}

func TestRegisterLotSuccess(t *testing.T) {
	var captured samplesvc.RegisterLotInput
	svc := &stubLotService{
		registerFn: func(ctx context.Context, input samplesvc.RegisterLotInput) (*models.SampleLot, error) {
			captured = input
			return &models.SampleLot{ID: uuid.New(), LotNumber: input.LotNumber}, nil
		},
	}
	handler := RegisterLot(svc, nil)

	body := `{"lot_number": "LOT-2026-0815", "material_name": "Isopropyl alcohol", "unit": "l", "quantity": "40"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lots", strings.NewReader(body))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.LotNumber != "LOT-2026-0815" || captured.Unit != enums.QuantityUnitLiter {
		t.Fatalf("unexpected input: %+v", captured)
	}

	var envelope struct {
		Data models.SampleLot `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.LotNumber != "LOT-2026-0815" {
		t.Fatalf("unexpected lot number: %s", envelope.Data.LotNumber)
	}
}

func TestGetLotNotFound(t *testing.T) {
	svc := &stubLotService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "lot not found")}
	handler := GetLot(svc, nil)

	lotID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/lots/"+lotID.String(), nil)
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("lotID", lotID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestListLotsRejectsOversizeLimit(t *testing.T) {
	handler := ListLots(&stubLotService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lots?limit=500", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListLotsForwardsCursor(t *testing.T) {
	var captured pagination.Params
	svc := &stubLotService{
		listFn: func(ctx context.Context, params pagination.Params) (*samplesvc.LotList, error) {
			captured = params
			return &samplesvc.LotList{NextCursor: "after"}, nil
		},
	}
	handler := ListLots(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lots?limit=10&cursor=before", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.Limit != 10 || captured.Cursor != "before" {
		t.Fatalf("unexpected params: %+v", captured)
	}
}
