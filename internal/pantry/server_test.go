package pantry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/pantrypal/pantry-scan/internal/capture"
	"github.com/pantrypal/pantry-scan/internal/decoding"
	"github.com/pantrypal/pantry-scan/internal/product"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		decoder     *mockDecoder
		resolver    *mockResolver
		gateway     *mockGateway
		service     *Service
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		decoder = &mockDecoder{
			symbol: &decoding.Symbol{Text: "737628064502", Format: "UPC_A"},
		}
		resolver = &mockResolver{record: &product.Record{
			Barcode:  "737628064502",
			Name:     "Organic Bananas",
			Brand:    "Dole",
			Resolved: true,
		}}
		gateway = &mockGateway{item: &PersistedItem{ID: "item-42", Name: "Organic Bananas"}}
		idGen := &mockIDGenerator{id: "test-id-123"}
		timeSrc := &mockTimeSource{now: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)}
		store := NewDraftStoreWithDeps(idGen, timeSrc)
		service = NewServiceWithDeps(capture.NewManager(), decoder, resolver, store, gateway, db, storage, idGen, timeSrc)
		auth = BasicAuth{}
		setupServer()
	})

	AfterEach(func() {
		service.Close()
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleHealth", func() {
		It("should return status OK", func() {
			resp, err := http.Get(ghttpServer.URL() + "/health")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("OK"))
		})
	})

	Describe("handleStartSession", func() {
		It("should return the new session ID", func() {
			resp, err := http.Post(ghttpServer.URL()+"/api/scan/sessions", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var payload map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
			Expect(payload["session_id"]).NotTo(BeEmpty())
			Expect(payload["state"]).To(Equal("scanning"))
		})
	})

	Describe("handleStopSession", func() {
		It("should return no content", func() {
			startResp, err := http.Post(ghttpServer.URL()+"/api/scan/sessions", "application/json", nil)
			Expect(err).NotTo(HaveOccurred())
			var payload map[string]any
			Expect(json.NewDecoder(startResp.Body).Decode(&payload)).To(Succeed())
			startResp.Body.Close()
			sessionID := payload["session_id"].(string)

			ghttpServer.AppendHandlers(server.ServeHTTP)
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/scan/sessions/"+sessionID, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("should be idempotent for an unknown session", func() {
			req, err := http.NewRequest("DELETE", ghttpServer.URL()+"/api/scan/sessions/nonexistent", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})
	})

	Describe("handleScanPhoto", func() {
		post := func() *http.Response {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("photo", "barcode.jpg")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("fake image data"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/scan/photo", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the photo contains a barcode", func() {
			It("should return the updated draft", func() {
				resp := post()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var draft InventoryDraft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.Name).To(Equal("Organic Bananas"))
			})
		})

		When("the photo contains no barcode", func() {
			BeforeEach(func() {
				decoder.symbol = nil
			})

			It("should return unprocessable entity", func() {
				resp := post()
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})

		When("no file is provided", func() {
			It("should return bad request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/scan/photo", "multipart/form-data", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleManualBarcode", func() {
		post := func(payload string) *http.Response {
			resp, err := http.Post(ghttpServer.URL()+"/api/scan/manual", "application/json", bytes.NewBufferString(payload))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the barcode is valid", func() {
			It("should return the updated draft", func() {
				resp := post(`{"barcode": "737628064502"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var draft InventoryDraft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.Barcode).To(Equal("737628064502"))
			})
		})

		When("the barcode is invalid", func() {
			It("should return bad request with the field", func() {
				resp := post(`{"barcode": "737628064501"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var payload map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
				Expect(payload["field"]).To(Equal("barcode"))
			})
		})
	})

	Describe("handleGetDraft", func() {
		It("should return the draft and state", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/draft")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var payload struct {
				Draft InventoryDraft `json:"draft"`
				State State          `json:"state"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
			Expect(payload.Draft.Name).To(Equal(product.UnknownProductName))
			Expect(payload.State).To(Equal(StateIdle))
		})
	})

	Describe("handleEditDraft", func() {
		patch := func(payload string) *http.Response {
			req, err := http.NewRequest("PATCH", ghttpServer.URL()+"/api/draft", bytes.NewBufferString(payload))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		When("the edits are valid", func() {
			It("should return the updated draft", func() {
				resp := patch(`{"name": "Oat Milk", "quantity": 2}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var draft InventoryDraft
				Expect(json.NewDecoder(resp.Body).Decode(&draft)).To(Succeed())
				Expect(draft.Name).To(Equal("Oat Milk"))
				Expect(draft.Quantity).To(Equal(2.0))
			})
		})

		When("an edit fails validation", func() {
			It("should return bad request with the field", func() {
				resp := patch(`{"unit": "bushels"}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var payload map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
				Expect(payload["field"]).To(Equal("unit"))
			})
		})

		When("the body is empty", func() {
			It("should return bad request", func() {
				resp := patch(`{}`)
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("handleSubmitDraft", func() {
		When("submission succeeds", func() {
			It("should return the persisted item", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/draft/submit", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var item PersistedItem
				Expect(json.NewDecoder(resp.Body).Decode(&item)).To(Succeed())
				Expect(item.ID).To(Equal("item-42"))
			})
		})

		When("the gateway rejects the draft", func() {
			BeforeEach(func() {
				gateway.submitErr = &ValidationError{Field: "expiration_date", Message: "expiration date must be in the future"}
			})

			It("should return bad request with the server's message", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/draft/submit", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var payload map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&payload)).To(Succeed())
				Expect(payload["error"]).To(Equal("expiration date must be in the future"))
			})
		})

		When("the inventory API is unreachable", func() {
			BeforeEach(func() {
				gateway.submitErr = ErrInventoryUnreachable
			})

			It("should return bad gateway", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/draft/submit", "application/json", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("handleHistory", func() {
		When("scan records exist", func() {
			BeforeEach(func() {
				db.scans["scan-1"] = &ScanRecord{ID: "scan-1", Barcode: "737628064502"}
			})

			It("should return all records", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/history")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var scans []*ScanRecord
				Expect(json.NewDecoder(resp.Body).Decode(&scans)).To(Succeed())
				Expect(scans).To(HaveLen(1))
			})
		})

		When("no scan records exist", func() {
			It("should return an empty array, not null", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/history")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("[]"))
			})
		})
	})

	Describe("handleHistoryEntry", func() {
		When("the record does not exist", func() {
			It("should return not found", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/history/nonexistent")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("handleHistorySnapshot", func() {
		When("the snapshot exists", func() {
			BeforeEach(func() {
				db.scans["scan-1"] = &ScanRecord{ID: "scan-1", SnapshotPath: "scan-1.jpg"}
				storage.files["scan-1.jpg"] = []byte("image bytes")
			})

			It("should return the image with its content type", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/history/scan-1/image")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
				body, _ := io.ReadAll(resp.Body)
				Expect(body).To(Equal([]byte("image bytes")))
			})
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
			setupServer()
		})

		When("credentials are missing", func() {
			It("should return unauthorized", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/draft")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			})
		})

		When("credentials are valid", func() {
			It("should allow the request", func() {
				req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/draft", nil)
				Expect(err).NotTo(HaveOccurred())
				req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("user:pass")))
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		When("the health endpoint is hit", func() {
			It("should not require auth", func() {
				resp, err := http.Get(ghttpServer.URL() + "/health")
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})
	})
})
