package sqlinline

const QInsertSearchJob = `--sql 56dc806e-59d1-4e27-8f92-241a08bd8004
insert into search_jobs(
  id,
  owner_id,
  topics,
  competitors,
  platforms,
  queries,
  settings,
  status,
  results_count,
  created_at,
  updated_at
)
values ($1::uuid, $2::text, $3::jsonb, $4::jsonb, $5::jsonb, $6::jsonb, $7::jsonb, $8::text, 0, now(), now())
returning created_at, updated_at;
`

const QSelectSearchJobByID = `--sql 188b513b-b7f1-4608-9ccf-635ff70521e9
select
  id::text,
  owner_id,
  topics,
  competitors,
  platforms,
  queries,
  settings,
  coalesce(run_id, ''),
  coalesce(dataset_id, ''),
  status,
  coalesce(error_message, ''),
  results_count,
  result_json,
  created_at,
  updated_at,
  processing_started_at,
  completed_at
from search_jobs
where id = $1::uuid
limit 1;
`

// QTransitionSearchJob moves a job only when its current status is one of
// $8, or when $9 is set and the job has been processing since before $9.
const QTransitionSearchJob = `--sql 71ebcea8-d984-49e7-92a0-47a9f2bfb63d
update search_jobs
set
  status = $2::text,
  run_id = coalesce(nullif($3::text, ''), run_id),
  dataset_id = coalesce(nullif($4::text, ''), dataset_id),
  error_message = coalesce(nullif($5::text, ''), error_message),
  results_count = coalesce($6::int, results_count),
  result_json = coalesce($7::jsonb, result_json),
  processing_started_at = case when $2::text = 'processing' then now() else processing_started_at end,
  completed_at = case when $2::text in ('done', 'failed', 'timeout') then now() else completed_at end,
  updated_at = now()
where id = $1::uuid
  and (
    status = any($8::text[])
    or ($9::timestamptz is not null and status = 'processing' and processing_started_at < $9::timestamptz)
  );
`
