package record

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/cuisine-ocr/internal/catalog"
	"github.com/zombor/cuisine-ocr/internal/engine"
	"github.com/zombor/cuisine-ocr/internal/extract"
)

const integrationCatalog = `{
  "entries": [
    {"id": "r-linguine", "name": "Linguine aux palourdes", "kind": "recipe"},
    {"id": "r-tatin", "name": "Tarte Tatin", "kind": "recipe"},
    {"id": "p-palourdes", "name": "Palourdes fraîches", "kind": "product"}
  ],
  "recipes": [
    {"id": "r-linguine", "portions": 1, "ingredients": [{"product_id": "p-palourdes", "quantity": "0.1", "unit": "kg"}]}
  ],
  "stock": {"p-palourdes": "0.2"}
}`

const integrationReport = `RAPPORT DE CLOTURE CAISSE
Le Bistrot du Port
Date: 14/03/2024 Service: soir
x35) Plats principaux 1900,00
  (x20) Linguine aux palourdes 1000,00
  (x15) Boeuf bourguignon 900,00
x18) Desserts 324,00
  (x10) Tarte tatin 180,00
  (x8) Mousse au chocolat 144,00
TOTAL GENERAL 2224,00
`

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       DB
		store    Storage
		service  *Service
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "cuisine-ocr-test-*")
		Expect(err).NotTo(HaveOccurred())

		db, err = NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = NewLocalStorage(filepath.Join(tempDir, "documents"))
		Expect(err).NotTo(HaveOccurred())

		eng, err := engine.New(extract.DefaultRules())
		Expect(err).NotTo(HaveOccurred())

		service = NewService(db, store, eng, catalog.NewSnapshot(nil, nil, nil), 10*time.Second)
		server := NewServerWithMux(service, BasicAuth{}, http.NewServeMux())

		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler("GET", anyPath, server.ServeHTTP)
		ghServer.RouteToHandler("POST", anyPath, server.ServeHTTP)
		ghServer.RouteToHandler("PUT", anyPath, server.ServeHTTP)
		ghServer.RouteToHandler("DELETE", anyPath, server.ServeHTTP)
	})

	AfterEach(func() {
		ghServer.Close()
		if db != nil {
			db.Close()
		}
		os.RemoveAll(tempDir)
	})

	send := func(method, path string, body []byte) *http.Response {
		req, err := http.NewRequest(method, ghServer.URL()+path, bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("should extract, confirm and delete a Z-report", func() {
		// Load the catalog
		resp := send("PUT", "/api/catalog", []byte(integrationCatalog))
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		stored, err := db.GetCatalog()
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(MatchJSON(integrationCatalog))

		// Submit the report
		payload, err := json.Marshal(engine.RawDocument{ID: "z-2024-03-14", DocumentType: engine.DocumentZReport, RawText: integrationReport, PageCount: 1})
		Expect(err).NotTo(HaveOccurred())
		resp = send("POST", "/api/extractions", payload)
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created Record
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
		resp.Body.Close()
		Expect(created.ID).NotTo(BeEmpty())
		Expect(created.DocumentID).To(Equal("z-2024-03-14"))
		Expect(created.Status).To(Equal(StatusExtracted))
		Expect(created.Result).NotTo(BeNil())
		Expect(created.Result.ZReport).NotTo(BeNil())
		Expect(created.Result.ZReport.RawItems).To(HaveLen(4))
		Expect(created.Result.Matches[0].MatchedCatalogID).To(Equal("r-linguine"))
		Expect(created.Result.Deductions).NotTo(BeNil())
		Expect(created.Result.Deductions.Proposals[0].IngredientDeductions[0].ResultingStock.Equal(decimal.RequireFromString("-1.8"))).To(BeTrue())

		// Read it back
		resp = send("GET", "/api/extractions/"+created.ID, nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var fetched Record
		Expect(json.NewDecoder(resp.Body).Decode(&fetched)).To(Succeed())
		resp.Body.Close()
		Expect(fetched.Result.ZReport.RawItems).To(HaveLen(4))

		resp = send("GET", "/api/extractions/"+created.ID+"/text", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		text, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal(integrationReport))

		// Confirm twice
		resp = send("POST", "/api/extractions/"+created.ID+"/confirm", nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp = send("POST", "/api/extractions/"+created.ID+"/confirm", nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))

		// Delete
		resp = send("DELETE", "/api/extractions/"+created.ID, nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		resp = send("GET", "/api/extractions/"+created.ID, nil)
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

		_, err = os.Stat(filepath.Join(tempDir, "documents", created.TextFile))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should store a rejected record for an unreadable scan", func() {
		payload, err := json.Marshal(engine.RawDocument{ID: "scan-1", DocumentType: engine.DocumentInvoice, RawText: "▒▒▒ ░░ ▓▓\n¤¤ ~~ ^^\n"})
		Expect(err).NotTo(HaveOccurred())

		resp := send("POST", "/api/extractions", payload)
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		var created Record
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
		resp.Body.Close()
		Expect(created.Status).To(Equal(StatusRejected))
		Expect(created.Error).NotTo(BeEmpty())

		records, err := db.ListRecords()
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
	})
})
