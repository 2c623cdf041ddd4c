package passenger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		source      *mockSource
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
		service = NewServiceWithDeps(db, scanner, storage, source, extractor,
			&mockIDGenerator{id: "inv-1"},
			&mockTimeSource{now: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	addPassenger := func(ticket string, download DownloadStatus, path string) *Passenger {
		p := &Passenger{
			TicketNumber:   ticket,
			FirstName:      "Asha",
			LastName:       "Rao",
			DownloadStatus: download,
			ParseStatus:    ParsePending,
			DocumentPath:   path,
		}
		if path != "" {
			p.ContentType = "application/pdf"
		}
		Expect(db.CreatePassenger(p)).To(Succeed())
		return p
	}

	post := func(path string, body []byte) *http.Response {
		resp, err := http.Post(ghttpServer.URL()+path, "application/json", bytes.NewReader(body))
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
		scanner = &mockScanner{text: "Invoice No: TG-7781"}
		source = &mockSource{doc: &Document{Filename: "0987654321.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}}
		extractor = &mockExtractor{record: newTestRecord()}
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		When("request method is GET", func() {
			It("should return HTML containing Invoice Tracker", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Invoice Tracker"))
			})
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp := post("/", nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("static assets", func() {
		It("should serve the stylesheet", func() {
			resp, err := http.Get(ghttpServer.URL() + "/static/app.css")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css"))
		})

		It("should serve the script", func() {
			resp, err := http.Get(ghttpServer.URL() + "/static/app.js")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("javascript"))
		})
	})

	Describe("handleListPassengers", func() {
		When("passengers exist", func() {
			BeforeEach(func() {
				addPassenger("111", DownloadPending, "")
				addPassenger("222", Downloaded, "invoice_2.pdf")
			})

			It("should return them with booking IDs", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/passengers")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var passengers []map[string]any
				decode(resp, &passengers)
				Expect(passengers).To(HaveLen(2))
				Expect(passengers[0]["booking_id"]).To(Equal("AI000001"))
				Expect(passengers[0]["ticket_number"]).To(Equal("111"))
				Expect(passengers[1]["download_status"]).To(Equal("Downloaded"))
			})
		})

		When("no passengers exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/passengers")
				Expect(err).NotTo(HaveOccurred())
				var passengers []map[string]any
				decode(resp, &passengers)
				Expect(passengers).NotTo(BeNil())
				Expect(passengers).To(BeEmpty())
			})
		})

		When("the repository fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("db error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/passengers")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			})
		})
	})

	Describe("handleListInvoices", func() {
		BeforeEach(func() {
			p := addPassenger("111", Downloaded, "invoice_1.pdf")
			record := newTestRecord()
			record.SubjectID = p.ID
			db.invoices["inv-1"] = &Invoice{ID: "inv-1", InvoiceRecord: *record}
		})

		It("should return invoices with passenger names", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/invoices")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var invoices []map[string]any
			decode(resp, &invoices)
			Expect(invoices).To(HaveLen(1))
			Expect(invoices[0]["passenger_name"]).To(Equal("Asha Rao"))
			Expect(invoices[0]["invoice_number"]).To(Equal("TG-7781"))
			Expect(invoices[0]["amount"]).To(BeEquivalentTo(18450.75))
			Expect(invoices[0]["tax_id"]).To(Equal("29AAACT1234K1Z5"))
			Expect(invoices[0]["reviewed"]).To(BeFalse())
		})
	})

	Describe("handleStats", func() {
		BeforeEach(func() {
			addPassenger("111", Downloaded, "invoice_1.pdf")
			addPassenger("222", DownloadPending, "")
			record := newTestRecord()
			record.Amount = decimal.RequireFromString("25000")
			db.invoices["inv-1"] = &Invoice{ID: "inv-1", InvoiceRecord: *record}
		})

		It("should return the dashboard counters", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/stats")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var stats map[string]any
			decode(resp, &stats)
			Expect(stats["total_downloads"]).To(Equal("1/2"))
			Expect(stats["parsed_invoices"]).To(BeEquivalentTo(1))
			Expect(stats["total_amount"]).To(BeEquivalentTo(25000))
			Expect(stats["high_value"]).To(BeEquivalentTo(1))
		})
	})

	Describe("handleDownload", func() {
		var resp *http.Response

		When("the document is found", func() {
			BeforeEach(func() {
				addPassenger("0987654321", DownloadPending, "")
			})

			It("should report success", func() {
				resp = post("/api/download/1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["status"]).To(Equal("success"))
				Expect(result["message"]).To(Equal("Invoice downloaded successfully"))
				Expect(result["pdf_path"]).To(Equal("invoice_1.pdf"))
			})
		})

		When("the document is missing", func() {
			BeforeEach(func() {
				addPassenger("0987654321", DownloadPending, "")
				source.fetchErr = ErrDocumentNotFound
			})

			It("should report not_found with status OK", func() {
				resp = post("/api/download/1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["status"]).To(Equal("not_found"))
				Expect(result["message"]).To(Equal("Invoice not found for this passenger"))
				Expect(result).NotTo(HaveKey("pdf_path"))
			})
		})

		When("the passenger does not exist", func() {
			It("should return status Not Found", func() {
				resp = post("/api/download/9", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

				var result map[string]any
				decode(resp, &result)
				Expect(result["message"]).To(Equal("Passenger not found"))
			})
		})

		When("the ID is not a number", func() {
			It("should return status Bad Request", func() {
				resp = post("/api/download/abc", nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleParse", func() {
		When("the document is downloaded", func() {
			BeforeEach(func() {
				addPassenger("0987654321", Downloaded, "invoice_1.pdf")
				storage.files["invoice_1.pdf"] = []byte("%PDF-1.4")
			})

			It("should return the invoice data", func() {
				resp := post("/api/parse/1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result struct {
					Status      string         `json:"status"`
					Message     string         `json:"message"`
					InvoiceData map[string]any `json:"invoice_data"`
				}
				decode(resp, &result)
				Expect(result.Status).To(Equal("success"))
				Expect(result.Message).To(Equal("Invoice parsed successfully"))
				Expect(result.InvoiceData["invoice_number"]).To(Equal("TG-7781"))
				Expect(result.InvoiceData["subject_id"]).To(BeEquivalentTo(1))
				Expect(result.InvoiceData["status"]).To(Equal("Parsed"))
			})
		})

		When("the document has not been downloaded", func() {
			BeforeEach(func() {
				addPassenger("0987654321", DownloadPending, "")
			})

			It("should return status Bad Request", func() {
				resp := post("/api/parse/1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var result map[string]any
				decode(resp, &result)
				Expect(result["message"]).To(Equal("Invoice must be downloaded first"))
			})
		})

		When("extraction fails", func() {
			BeforeEach(func() {
				addPassenger("0987654321", Downloaded, "invoice_1.pdf")
				storage.files["invoice_1.pdf"] = []byte("%PDF-1.4")
				scanner.scanErr = errors.New("corrupt pdf")
			})

			It("should report a generic failure without partial data", func() {
				resp := post("/api/parse/1", nil)
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["status"]).To(Equal("error"))
				Expect(result["message"]).To(Equal("Failed to parse invoice"))
				Expect(result).NotTo(HaveKey("invoice_data"))
			})
		})

		When("the passenger does not exist", func() {
			It("should return status Not Found", func() {
				resp := post("/api/parse/3", nil)
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleDocumentInfo", func() {
		When("the document is available", func() {
			BeforeEach(func() {
				addPassenger("0987654321", Downloaded, "invoice_1.pdf")
			})

			It("should return the viewing URL", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/pdf/1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["status"]).To(Equal("success"))
				Expect(result["pdf_url"]).To(Equal("/pdf/1"))
			})
		})

		When("the document is not available", func() {
			BeforeEach(func() {
				addPassenger("0987654321", DownloadNotFound, "")
			})

			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/pdf/1")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

				var result map[string]any
				decode(resp, &result)
				Expect(result["message"]).To(Equal("PDF not available"))
			})
		})
	})

	Describe("handleDocument", func() {
		When("the document is stored", func() {
			BeforeEach(func() {
				addPassenger("0987654321", Downloaded, "invoice_1.pdf")
				storage.files["invoice_1.pdf"] = []byte("%PDF-1.4")
			})

			It("should serve the bytes with their content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/pdf/1")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
				body, _ := io.ReadAll(resp.Body)
				Expect(body).To(Equal([]byte("%PDF-1.4")))
			})
		})

		When("the passenger has no document", func() {
			BeforeEach(func() {
				addPassenger("0987654321", DownloadPending, "")
			})

			It("should return status Not Found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/pdf/1")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleReview", func() {
		BeforeEach(func() {
			db.invoices["inv-1"] = &Invoice{ID: "inv-1", InvoiceRecord: *newTestRecord()}
		})

		When("marking an invoice", func() {
			It("should set the flag", func() {
				resp := post("/api/review/inv-1", []byte(`{"reviewed":true}`))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["message"]).To(Equal("Invoice marked for review"))
				Expect(db.invoices["inv-1"].Reviewed).To(BeTrue())
			})
		})

		When("unmarking an invoice", func() {
			BeforeEach(func() {
				db.invoices["inv-1"].Reviewed = true
			})

			It("should clear the flag", func() {
				resp := post("/api/review/inv-1", []byte(`{"reviewed":false}`))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var result map[string]any
				decode(resp, &result)
				Expect(result["message"]).To(Equal("Invoice unmarked for review"))
				Expect(db.invoices["inv-1"].Reviewed).To(BeFalse())
			})
		})

		When("the invoice does not exist", func() {
			It("should return status Not Found", func() {
				resp := post("/api/review/missing", []byte(`{"reviewed":true}`))
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})

		When("the body is invalid", func() {
			It("should return status Bad Request", func() {
				resp := post("/api/review/inv-1", []byte(`not json`))
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		When("credentials are missing", func() {
			It("should return status Unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/passengers")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
				Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			})
		})

		When("credentials are wrong", func() {
			It("should return status Unauthorized", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/passengers", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "wrong")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are correct", func() {
			It("should return status OK", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/passengers", nil)
				Expect(err).NotTo(HaveOccurred())
				req.SetBasicAuth("admin", "secret")
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})

	Describe("corsMiddleware", func() {
		It("should answer preflight requests", func() {
			handler := server.corsMiddleware(server)
			ghttpServer.Close()
			ghttpServer = ghttp.NewServer()
			ghttpServer.AppendHandlers(handler.ServeHTTP)

			req, err := http.NewRequest("OPTIONS", ghttpServer.URL()+"/api/passengers", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
