package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_loyalty/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ProductService interface {
	ListProducts(ctx context.Context, category string) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type ProductHandler struct {
	products ProductService
	timeout  time.Duration
	log      *zap.Logger
}

func NewProductHandler(products ProductService, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		products: products,
		timeout:  timeout,
		log:      log,
	}
}

type productDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	Price         string            `json:"price"`
	DiscountPrice string            `json:"discount_price,omitempty"`
	CoinPrice     int64             `json:"coin_price"`
	Options       []string          `json:"options"`
	Extras        []productExtraDTO `json:"extras"`
	IsFlashDeal   bool              `json:"is_flash_deal"`
	IsBestSeller  bool              `json:"is_best_seller"`
}

type productExtraDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

func toProductDTO(p *domain.Product) productDTO {
	dto := productDTO{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Category:     p.Category,
		Price:        money(p.Price),
		CoinPrice:    p.CoinPrice,
		Options:      append([]string{}, p.Options...),
		Extras:       make([]productExtraDTO, 0, len(p.Extras)),
		IsFlashDeal:  p.IsFlashDeal,
		IsBestSeller: p.IsBestSeller,
	}
	if p.DiscountPrice.IsPositive() {
		dto.DiscountPrice = money(p.DiscountPrice)
	}
	for _, e := range p.Extras {
		dto.Extras = append(dto.Extras, productExtraDTO{ID: e.ID, Name: e.Name, Price: money(e.Price)})
	}
	return dto
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.products.ListProducts(ctx, r.URL.Query().Get("category"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	out := make([]productDTO, 0, len(list))
	for _, p := range list {
		out = append(out, toProductDTO(p))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.products.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductDTO(product))
}
