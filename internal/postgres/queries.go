package postgres

const chatColumns = `id, clinic_id, doctor_id, last_seq, last_message_at, created_at`

const messageColumns = `id, chat_id, seq, content, sender_clinic_id, sender_doctor_id,
	attachment_url, attachment_name, attachment_type, is_read, created_at`

const (
	qChatByID = `SELECT ` + chatColumns + ` FROM chats WHERE id = $1`

	qChatByIDForUpdate = `SELECT ` + chatColumns + ` FROM chats WHERE id = $1 FOR UPDATE`

	qChatByParticipants = `SELECT ` + chatColumns + `
		FROM chats
		WHERE clinic_id = $1 AND doctor_id = $2`

	qInsertChat = `
		INSERT INTO chats (id, clinic_id, doctor_id, last_seq, last_message_at, created_at)
		VALUES ($1, $2, $3, 0, $4, $4)
		RETURNING ` + chatColumns

	qChatsByClinic = `SELECT ` + chatColumns + `
		FROM chats
		WHERE clinic_id = $1
		ORDER BY last_message_at DESC, id ASC`

	qChatsByDoctor = `SELECT ` + chatColumns + `
		FROM chats
		WHERE doctor_id = $1
		ORDER BY last_message_at DESC, id ASC`

	qBumpChat = `UPDATE chats SET last_seq = $2, last_message_at = $3 WHERE id = $1`

	qInsertMessage = `
		INSERT INTO chat_messages (
			id, chat_id, seq, content, sender_clinic_id, sender_doctor_id,
			attachment_url, attachment_name, attachment_type, is_read, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)
		RETURNING ` + messageColumns

	qMessagesAsc = `SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE chat_id = $1 AND seq > $2
		ORDER BY seq ASC
		LIMIT $3`

	qMessagesDesc = `SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE chat_id = $1 AND ($2::bigint = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`

	qMessageByID = `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`

	qMarkRead = `UPDATE chat_messages SET is_read = true WHERE id = $1 RETURNING ` + messageColumns

	qClinicProfile = `SELECT name FROM clinics WHERE id = $1`

	qDoctorProfile = `SELECT full_name, COALESCE(specialization, '') FROM doctors WHERE id = $1`
)
