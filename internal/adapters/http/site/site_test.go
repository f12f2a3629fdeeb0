package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a mux with the site registered", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		get := func(path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
			return w
		}

		Convey("Then the display page is served at the root", func() {
			w := get("/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "kitchenbeat")
		})

		Convey("And its assets are served", func() {
			So(get("/app.js").Code, ShouldEqual, http.StatusOK)
			So(get("/style.css").Code, ShouldEqual, http.StatusOK)
		})

		Convey("And unknown files are not found", func() {
			So(get("/missing.png").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And more specific routes still win", func() {
			So(get("/stats").Code, ShouldEqual, http.StatusTeapot)
		})

		Convey("And writes are rejected", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})

	Convey("Given a nil mux", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
