package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewServer creates an echo instance with the validator and error rendering handlers rely on
func NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler
	return e
}

// RegisterRoutes mounts the API. The webhook is the only unauthenticated payment route;
// it is authenticated by its signature instead.
func RegisterRoutes(e *echo.Echo, payments *PaymentHandler, enrollments *EnrollmentHandler, auth echo.MiddlewareFunc) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.POST("/payments/webhook", payments.Webhook)

	p := e.Group("/payments", auth)
	p.POST("/checkout", payments.Checkout)
	p.GET("", payments.ListPayments)
	p.GET("/:id", payments.GetPayment)
	p.DELETE("/:id", payments.DeletePayment)
	p.POST("/:id/refund", payments.Refund)

	e.POST("/courses/:courseId/enroll", enrollments.Enroll, auth)

	en := e.Group("/enrollments", auth)
	en.GET("/me", enrollments.ListMine)
	en.GET("/:id", enrollments.GetEnrollment)
}
