package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivoor/vivoor-api/internal/models"
	"github.com/vivoor/vivoor-api/internal/payload"
)

const chatFee = 20_000_000

func newChatFixture(t *testing.T) (*fakeChain, *memStore, *ChatService) {
	t.Helper()
	c, store := newFakeChain(), newMemStore()
	svc := NewChatService(NewTxVerifier(c, store, false, nil), store, NewWalletService(), chatFee, nil)
	return c, store, svc
}

func chatTx(t *testing.T, id, streamID, text string) *models.ChainTransaction {
	t.Helper()
	p, err := payload.Encode(payload.KindChat, map[string]string{payload.FieldStreamID: streamID, payload.FieldText: text})
	require.NoError(t, err)
	tx := acceptedTx(id, models.TxOutput{Amount: chatFee, DestinationAddress: senderAddr})
	tx.Payload = p
	return tx
}

func TestVerifyChatPost(t *testing.T) {
	c, store, svc := newChatFixture(t)
	id := txid("c7")
	c.put(chatTx(t, id, "stream-9", "hello there"))

	v, text, err := svc.VerifyChatPost(context.Background(), "user-1", models.ChatVerifyRequest{
		UserAddress: senderAddr, StreamID: "stream-9", TxID: id,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, models.PaymentChatPost, v.PaymentType)
	assert.Nil(t, v.ExpiresAt)
	assert.Len(t, store.payments, 1)
}

func TestVerifyChatPost_Rejections(t *testing.T) {
	t.Run("wrong stream", func(t *testing.T) {
		c, _, svc := newChatFixture(t)
		id := txid("c8")
		c.put(chatTx(t, id, "stream-1", "hi"))
		_, _, err := svc.VerifyChatPost(context.Background(), "user-1", models.ChatVerifyRequest{
			UserAddress: senderAddr, StreamID: "stream-2", TxID: id,
		})
		requireState(t, err, StateMissingPayload)
	})

	t.Run("sent from another wallet", func(t *testing.T) {
		c, _, svc := newChatFixture(t)
		id := txid("c9")
		tx := chatTx(t, id, "stream-1", "hi")
		tx.Inputs[0].SenderAddress = otherAddr
		c.put(tx)
		_, _, err := svc.VerifyChatPost(context.Background(), "user-1", models.ChatVerifyRequest{
			UserAddress: senderAddr, StreamID: "stream-1", TxID: id,
		})
		requireState(t, err, StateRejectedSender)
	})

	t.Run("unresolved inputs", func(t *testing.T) {
		c, _, svc := newChatFixture(t)
		id := txid("ca")
		tx := chatTx(t, id, "stream-1", "hi")
		tx.Inputs = nil
		c.put(tx)
		_, _, err := svc.VerifyChatPost(context.Background(), "user-1", models.ChatVerifyRequest{
			UserAddress: senderAddr, StreamID: "stream-1", TxID: id,
		})
		requireState(t, err, StateRejectedSender)
	})

	t.Run("fee too low", func(t *testing.T) {
		c, _, svc := newChatFixture(t)
		id := txid("cb")
		tx := chatTx(t, id, "stream-1", "hi")
		tx.Outputs[0].Amount = chatFee - 1
		c.put(tx)
		_, _, err := svc.VerifyChatPost(context.Background(), "user-1", models.ChatVerifyRequest{
			UserAddress: senderAddr, StreamID: "stream-1", TxID: id,
		})
		requireState(t, err, StateRejectedAmount)
	})
}

func TestAddressService_RecentTransactions(t *testing.T) {
	c := newFakeChain()
	tip, err := payload.Encode(payload.KindTip, map[string]string{payload.FieldMsg: "gg"})
	require.NoError(t, err)
	c.byAddr[streamerAddr] = []models.ChainTransaction{
		{ID: txid("d4"), Payload: tip},
		{ID: txid("d5"), Payload: "00ff"},
	}
	svc := NewAddressService(c, NewWalletService())

	txs, err := svc.RecentTransactions(context.Background(), streamerAddr, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.NotNil(t, txs[0].Decoded)
	assert.Equal(t, "tip", txs[0].Decoded.Kind)
	assert.Equal(t, "gg", txs[0].Decoded.Fields["msg"])
	assert.Nil(t, txs[1].Decoded)

	_, err = svc.RecentTransactions(context.Background(), "not-an-address", 10)
	requireState(t, err, StateInvalidRequest)
}
