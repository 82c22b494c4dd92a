package storage_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/vici/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	var (
		ctx   context.Context
		store *storage.InmemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewInmemoryStore(0)
	})

	AfterEach(func() {
		store.Close()
	})

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes update channels", func() {
			updates := store.ListenToUpdates(ctx)
			Expect(store.Close()).To(Succeed())
			Eventually(updates).Should(BeClosed())
		})
	})

	It("an empty inmemory store equals {}", func() {
		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())
			Expect(store.Get(ctx, "foo")).To(Equal([]byte(`"bar"`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("reports keys that were never written", func() {
			_, err := store.Get(ctx, "missing")
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("stores raw JSON as is", func() {
			Expect(store.SetRaw(ctx, "conn", []byte(`{"state":"up"}`))).To(Succeed())
			Expect(store.Get(ctx, "conn.state")).To(Equal([]byte(`"up"`)))
		})

		It("rejects raw values that are not JSON", func() {
			Expect(store.SetRaw(ctx, "conn", []byte(`{"state"`))).NotTo(Succeed())
		})

		It("sends on the update channel when values are set", func() {
			updates := store.ListenToUpdates(ctx)
			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())

			var update *storage.Update
			Eventually(updates).Should(Receive(&update))
			Expect(update).To(Equal(&storage.Update{
				Key:   "foo",
				Value: []byte(`"bar"`),
			}))
		})

		It("stops sending once the listener's context is done", func() {
			listenCtx, cancel := context.WithCancel(ctx)
			updates := store.ListenToUpdates(listenCtx)

			cancel()
			Eventually(updates, time.Second).Should(BeClosed())
			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())
		})
	})

	Describe("Append()", func() {
		It("grows an array in order", func() {
			Expect(store.Append(ctx, "log", []byte(`{"msg":"one"}`))).To(Succeed())
			Expect(store.Append(ctx, "log", []byte(`{"msg":"two"}`))).To(Succeed())

			Expect(store.Get(ctx, "log.#.msg")).To(MatchJSON(`["one","two"]`))
		})

		It("keeps only the newest items when capped", func() {
			capped := storage.NewInmemoryStore(2)
			defer capped.Close()

			for _, n := range []string{"1", "2", "3"} {
				Expect(capped.Append(ctx, "ike-updown", []byte(n))).To(Succeed())
			}

			Expect(capped.Get(ctx, "ike-updown")).To(MatchJSON(`[2,3]`))
		})
	})

	Describe("Delete()", func() {
		It("removes a key", func() {
			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())
			Expect(store.Delete(ctx, "foo")).To(Succeed())

			_, err := store.Get(ctx, "foo")
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("reports missing keys", func() {
			Expect(errors.Is(store.Delete(ctx, "foo"), storage.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Restore() / Backup()", func() {
		It("round trips the document", func() {
			Expect(store.Restore([]byte(`{"log":[1,2]}`))).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(value).To(MatchJSON(`{"log":[1,2]}`))
		})

		It("only restores objects", func() {
			Expect(store.Restore([]byte(`[1,2]`))).NotTo(Succeed())
		})
	})
})
