package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/auth"
)

type RouterConfig struct {
	APIKeys       []string
	MaxUploadSize int64
	Faces         handlers.FaceService
	DB            handlers.ContextPinger
	MinIO         handlers.ContextPinger
	NATS          handlers.Pinger
	Hub           *ws.Hub
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	if cfg.MaxUploadSize > 0 {
		// multipart parts beyond this spill to temp files
		r.MaxMultipartMemory = cfg.MaxUploadSize
	}

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.NATS)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	faceH := handlers.NewFaceHandler(cfg.Faces, cfg.MaxUploadSize)
	faces := v1.Group("/faces")
	faces.POST("/upload", faceH.Upload)
	faces.GET("/persons", faceH.ListPersons)
	faces.GET("/persons/:name", faceH.GetPerson)
	faces.GET("/persons/:name/signatures", faceH.ListSignatures)
	faces.DELETE("/persons/:id", faceH.DeletePerson)

	return r
}
