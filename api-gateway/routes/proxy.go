package routes

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Proxy forwards requests to the backing services
type Proxy struct {
	proxies map[string]*httputil.ReverseProxy
	log     *zap.Logger
}

// NewProxy builds one reverse proxy per service name
func NewProxy(services map[string]string, log *zap.Logger) (*Proxy, error) {
	p := &Proxy{proxies: make(map[string]*httputil.ReverseProxy, len(services)), log: log}
	for name, serviceURL := range services {
		target, err := url.Parse(serviceURL)
		if err != nil || target.Host == "" {
			return nil, fmt.Errorf("invalid URL for service %s: %q", name, serviceURL)
		}

		proxy := httputil.NewSingleHostReverseProxy(target)
		service := name
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("upstream request failed",
				zap.String("service", service),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprintf(w, `{"error":"Service unavailable","service":%q}`, service)
		}
		p.proxies[name] = proxy
	}
	return p, nil
}

// ProxyToService handles requests and proxies them to the named service
func (p *Proxy) ProxyToService(serviceName string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		proxy, exists := p.proxies[serviceName]
		if !exists {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Service not found", "service": serviceName})
			return
		}
		proxy.ServeHTTP(ctx.Writer, ctx.Request)
	}
}

// internalPaths are service-to-service endpoints the gateway never exposes
var internalPaths = map[string]bool{
	"/api/notifications/dispatch":   true,
	"/api/notifications/digest/run": true,
	"/ws/stats":                     true,
}

func publicOnly(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if internalPaths[path.Clean(c.Request.URL.Path)] {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		next(c)
	}
}

// Register mounts the public routes
func (p *Proxy) Register(router gin.IRouter) {
	router.Any("/api/auth/*path", p.ProxyToService("auth"))
	router.Any("/api/notifications", p.ProxyToService("notification"))
	router.Any("/api/notifications/*path", publicOnly(p.ProxyToService("notification")))
	router.GET("/ws/*path", publicOnly(p.ProxyToService("notification")))
}
