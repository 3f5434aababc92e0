package emotionRepository

const (
	queryCreateAnalysis = `
		INSERT INTO emotion_analyses (
			id,
			request_id,
			source,
			detector,
			face_count,
			dominant_emotions,
			width,
			height,
			image_url,
			created_at
		) VALUES (
			:id,
			:request_id,
			:source,
			:detector,
			:face_count,
			:dominant_emotions,
			:width,
			:height,
			:image_url,
			:created_at
		)
	`

	queryGetRecentAnalyses = `
		SELECT
			id,
			request_id,
			source,
			detector,
			face_count,
			dominant_emotions,
			width,
			height,
			image_url,
			created_at
		FROM emotion_analyses
		ORDER BY created_at DESC, id DESC
		LIMIT :limit OFFSET :offset
	`

	queryCountAnalyses = `
		SELECT COUNT(*) FROM emotion_analyses
	`

	queryGetAnalysisByID = `
		SELECT
			id,
			request_id,
			source,
			detector,
			face_count,
			dominant_emotions,
			width,
			height,
			image_url,
			created_at
		FROM emotion_analyses
		WHERE id = :id
	`
)
