package record

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/engine"
)

var anyPath = regexp.MustCompile(".*")

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewServiceWithDeps(db, storage, extractor, catalog.NewSnapshot(nil, nil, nil), time.Second,
			&fixedIDGenerator{ids: []string{"rec-1"}}, &fixedTimeSource{now: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.RouteToHandler("GET", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("POST", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("PUT", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("DELETE", anyPath, server.ServeHTTP)
		ghttpServer.RouteToHandler("OPTIONS", anyPath, server.ServeHTTP)
	}

	do := func(method, path string, body []byte) *http.Response {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decode := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, v)).To(Succeed())
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = &mockExtractor{result: &engine.Result{DocumentID: "doc-1", TotalDetected: 1, SuccessfullyProcessed: 1}}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("POST /api/extractions", func() {
		var body []byte

		BeforeEach(func() {
			body, _ = json.Marshal(engine.RawDocument{ID: "doc-1", DocumentType: engine.DocumentZReport, RawText: "RAPPORT Z"})
		})

		When("the document is processed", func() {
			It("should return the created record", func() {
				resp := do("POST", "/api/extractions", body)
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				var record Record
				decode(resp, &record)
				Expect(record.ID).To(Equal("rec-1"))
				Expect(record.Status).To(Equal(StatusExtracted))
			})
		})

		When("every segment is rejected", func() {
			BeforeEach(func() {
				extractor.err = engine.ErrNoUsableSegments
			})

			It("should return the rejected record as unprocessable", func() {
				resp := do("POST", "/api/extractions", body)
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				var record Record
				decode(resp, &record)
				Expect(record.Status).To(Equal(StatusRejected))
			})
		})

		When("the document type is unknown", func() {
			BeforeEach(func() {
				body = []byte(`{"document_type": "ticket_resto", "raw_text": "x"}`)
			})

			It("should return bad request", func() {
				resp := do("POST", "/api/extractions", body)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the body is not JSON", func() {
			It("should return bad request", func() {
				resp := do("POST", "/api/extractions", []byte("not json"))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the raw text is missing", func() {
			It("should return bad request", func() {
				resp := do("POST", "/api/extractions", []byte(`{"document_type": "z_report"}`))
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("processing fails", func() {
			BeforeEach(func() {
				extractor.result = nil
				extractor.err = errors.New("boom")
			})

			It("should return internal server error", func() {
				resp := do("POST", "/api/extractions", body)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/extractions", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a"}
			db.records["b"] = &Record{ID: "b"}
		})

		It("should return all records", func() {
			resp := do("GET", "/api/extractions", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var records []*Record
			decode(resp, &records)
			Expect(records).To(HaveLen(2))
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("should return internal server error", func() {
				resp := do("GET", "/api/extractions", nil)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("GET /api/extractions/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", DocumentID: "doc-a"}
		})

		It("should return the record", func() {
			resp := do("GET", "/api/extractions/a", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			decode(resp, &record)
			Expect(record.DocumentID).To(Equal("doc-a"))
		})

		It("should return not found for a missing record", func() {
			resp := do("GET", "/api/extractions/missing", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/extractions/{id}/text", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", TextFile: "a.txt"}
			storage.files["a.txt"] = []byte("RAPPORT Z")
		})

		It("should return the archived text", func() {
			resp := do("GET", "/api/extractions/a/text", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("RAPPORT Z"))
		})
	})

	Describe("POST /api/extractions/{id}/confirm", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a", Status: StatusExtracted}
			db.records["b"] = &Record{ID: "b", Status: StatusRejected}
		})

		It("should confirm the record", func() {
			resp := do("POST", "/api/extractions/a/confirm", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var record Record
			decode(resp, &record)
			Expect(record.Status).To(Equal(StatusConfirmed))
		})

		It("should return conflict for a rejected record", func() {
			resp := do("POST", "/api/extractions/b/confirm", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})

		It("should return not found for a missing record", func() {
			resp := do("POST", "/api/extractions/missing/confirm", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DELETE /api/extractions/{id}", func() {
		BeforeEach(func() {
			db.records["a"] = &Record{ID: "a"}
		})

		It("should delete the record", func() {
			resp := do("DELETE", "/api/extractions/a", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.records).To(BeEmpty())
		})

		It("should return not found for a missing record", func() {
			resp := do("DELETE", "/api/extractions/missing", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("/api/catalog", func() {
		It("should replace the catalog", func() {
			resp := do("PUT", "/api/catalog", []byte(validCatalog))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var summary map[string]int
			decode(resp, &summary)
			Expect(summary["entries"]).To(Equal(1))

			resp = do("GET", "/api/catalog", nil)
			decode(resp, &summary)
			Expect(summary["entries"]).To(Equal(1))
		})

		It("should reject an invalid catalog", func() {
			resp := do("PUT", "/api/catalog", []byte(`{"entries": [{"id": "x"}]}`))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp := do("OPTIONS", "/api/extractions", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "chef", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp := do("GET", "/api/extractions", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/extractions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("chef:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should reject a wrong password", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/extractions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("chef", "nope")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})
})
