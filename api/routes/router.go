package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teleos-scientific/tlink-backend/api/controllers"
	"github.com/teleos-scientific/tlink-backend/api/middleware"
	samplesvc "github.com/teleos-scientific/tlink-backend/internal/samples"
	shipmentsvc "github.com/teleos-scientific/tlink-backend/internal/shipments"
	supplysvc "github.com/teleos-scientific/tlink-backend/internal/supplies"
	"github.com/teleos-scientific/tlink-backend/pkg/config"
	"github.com/teleos-scientific/tlink-backend/pkg/enums"
	"github.com/teleos-scientific/tlink-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs. Pingers may be nil when a
// backing store is not wired, readiness skips them.
type Deps struct {
	Samples   samplesvc.Service
	Supplies  supplysvc.Service
	Shipments shipmentsvc.Service
	Pingers   map[string]controllers.Pinger
	Registry  *prometheus.Registry
}

// NewRouter assembles the full route tree with middleware and role guards.
func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/carrier/tracking", controllers.TrackingWebhook(cfg.Carrier, deps.Shipments, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		staff := middleware.RequireRoles(logg, enums.ActorRoleLabStaff, enums.ActorRoleAdmin)
		anyActor := middleware.RequireRoles(logg,
			enums.ActorRoleManufacturer, enums.ActorRoleLabStaff, enums.ActorRoleAdmin)

		r.Route("/lots", func(r chi.Router) {
			r.With(staff).Post("/", controllers.RegisterLot(deps.Samples, logg))
			r.With(staff).Post("/{lotID}/adjust", controllers.AdjustLot(deps.Samples, logg))
			r.With(anyActor).Get("/", controllers.ListLots(deps.Samples, logg))
			r.With(anyActor).Get("/{lotID}", controllers.GetLot(deps.Samples, logg))
		})

		r.Route("/supplies", func(r chi.Router) {
			r.With(staff).Post("/", controllers.CreateSupplyItem(deps.Supplies, logg))
			r.With(staff).Post("/{itemID}/restock", controllers.RestockSupplyItem(deps.Supplies, logg))
			r.With(staff).Get("/", controllers.ListSupplyItems(deps.Supplies, logg))
			r.With(staff).Get("/low-stock", controllers.ListLowStockSupplies(deps.Supplies, logg))
			r.With(staff).Get("/by-type/{supplyType}", controllers.GetSupplyItemByType(deps.Supplies, logg))
		})

		r.Route("/shipments", func(r chi.Router) {
			r.With(anyActor).Post("/", controllers.RequestShipment(deps.Shipments, logg))
			r.With(anyActor).Get("/", controllers.ListShipments(deps.Shipments, logg))
			r.With(anyActor).Get("/{shipmentID}", controllers.GetShipment(deps.Shipments, logg))
			r.With(anyActor).Post("/{shipmentID}/cancel", controllers.CancelShipment(deps.Shipments, logg))

			r.With(staff).Post("/{shipmentID}/begin", controllers.BeginProcessing(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/validate-address", controllers.ValidateShipmentAddress(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/quote", controllers.QuoteShipmentRate(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/label", controllers.GenerateShipmentLabel(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/poll-tracking", controllers.PollShipmentTracking(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/hazmat", controllers.SubmitHazmatDeclaration(deps.Shipments, logg))
			r.With(staff).Post("/{shipmentID}/hazmat/labels-printed", controllers.MarkHazmatLabelsPrinted(deps.Shipments, logg))
		})
	})

	return r
}
