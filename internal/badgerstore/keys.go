package badgerstore

import (
	"fmt"

	"github.com/whitesquaremedicalinnovations/Health-Marketplace-sub004/internal/domain"
)

// Раскладка ключей:
//
//	chat:{chatID}                               → Chat (json)
//	pair:{len}:{clinicID}:{doctorID}            → chatID
//	pchat:{type}:{len}:{participantID}:{chatID} → пусто (индекс для ListChats)
//	msg:{len}:{chatID}:{seq %020d}              → Message (json)
//	mid:{messageID}                             → ключ msg:...
//
// Длина перед id убирает неоднозначность, если id содержит ':'.
// seq дополнен нулями до 20 знаков, так что лексикографический порядок = порядок seq.

const seqWidth = 20

var maxSeqSuffix = []byte("99999999999999999999")

func chatKey(chatID string) []byte {
	return []byte("chat:" + chatID)
}

func pairKey(clinicID, doctorID string) []byte {
	return []byte(fmt.Sprintf("pair:%d:%s:%s", len(clinicID), clinicID, doctorID))
}

func participantPrefix(p domain.Sender) []byte {
	return []byte(fmt.Sprintf("pchat:%s:%d:%s:", p.Type(), len(p.ID()), p.ID()))
}

func participantKey(p domain.Sender, chatID string) []byte {
	return append(participantPrefix(p), chatID...)
}

func messagePrefix(chatID string) []byte {
	return []byte(fmt.Sprintf("msg:%d:%s:", len(chatID), chatID))
}

func messageKey(chatID string, seq int64) []byte {
	return fmt.Appendf(messagePrefix(chatID), "%0*d", seqWidth, seq)
}

func messageIDKey(messageID string) []byte {
	return []byte("mid:" + messageID)
}
